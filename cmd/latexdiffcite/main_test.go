package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gubarz/latexdiffcite/internal/executor"
	"github.com/gubarz/latexdiffcite/internal/ui"
)

const paperTex = "\\documentclass{article}\n" +
	"\\begin{document}\n" +
	"See \\citep{foo2010, foo2011}.\n" +
	"\\bibliography{refs}\n" +
	"\\end{document}\n"

const paperBib = `@article{foo2010,
  author = {Foo, John},
  year = {2010},
}

@article{foo2011,
  author = {Foo, John},
  year = {2011},
}
`

const paperBbl = `\begin{thebibliography}{2}

\bibitem[{Foo(2010)}]{foo2010}
Foo, J. (2010), Lorem.

\bibitem[{Foo(2011)}]{foo2011}
Foo, J. (2011), Ipsum.

\end{thebibliography}
`

const plainConfig = `{"ref_single_word": false}`

// fakeRunner answers git show from a map and records what latexdiff received
type fakeRunner struct {
	fs       afero.Fs
	git      map[string]string
	calls    []string
	diffed   [2]string
	exitCode int
}

func (f *fakeRunner) Run(_ context.Context, stdout io.Writer, name string, args ...string) error {
	f.calls = append(f.calls, name+" "+strings.Join(args, " "))
	if f.exitCode != 0 {
		return &executor.ExitError{Program: name, Code: f.exitCode, Stderr: "failed"}
	}
	switch name {
	case "git":
		text, ok := f.git[args[1]]
		if !ok {
			return &executor.ExitError{Program: "git", Code: 128, Stderr: "fatal: bad revision"}
		}
		_, err := io.WriteString(stdout, text)
		return err
	case "latexdiff":
		for i := 0; i < 2; i++ {
			data, err := afero.ReadFile(f.fs, args[i])
			if err != nil {
				return err
			}
			f.diffed[i] = string(data)
		}
		_, err := io.WriteString(stdout, "diff output")
		return err
	}
	return fmt.Errorf("unexpected program %s", name)
}

func newTestApp(t *testing.T) (*app, *fakeRunner, *bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/p/paper.tex", []byte(paperTex), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/p/refs.bib", []byte(paperBib), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/p/build/paper.bbl", []byte(paperBbl), 0o644))
	require.NoError(t, afero.WriteFile(fs, "/p/plain.json", []byte(plainConfig), 0o644))
	t.Setenv("HOME", "/nonexistent-home")

	runner := &fakeRunner{fs: fs}
	var stdout, stderr bytes.Buffer
	a := &app{fs: fs, stdout: &stdout, stderr: &stderr, runner: runner}
	return a, runner, &stdout, &stderr
}

func execute(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.Execute()
}

const expectedRewrite = "\\documentclass{article}\n" +
	"\\begin{document}\n" +
	"See [\\textit{Foo}, 2010, 2011].\n" +
	"\\bibliography{refs}\n" +
	"\\nocite{foo2010,foo2011}\n" +
	"\\end{document}\n"

func TestFileCommand(t *testing.T) {
	a, runner, _, _ := newTestApp(t)

	require.NoError(t, execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-c", "/p/plain.json", "-o", "/p/diff.tex"))

	assert.Equal(t, expectedRewrite, runner.diffed[0])
	assert.Equal(t, expectedRewrite, runner.diffed[1])

	out, err := afero.ReadFile(a.fs, "/p/diff.tex")
	require.NoError(t, err)
	assert.Equal(t, "diff output", string(out))

	require.Len(t, runner.calls, 1)
	fields := strings.Fields(runner.calls[0])
	require.Len(t, fields, 3)
	for _, tmp := range fields[1:] {
		ok, err := afero.Exists(a.fs, tmp)
		require.NoError(t, err)
		assert.False(t, ok, "temp file %s should be removed", tmp)
	}
}

func TestFileCommandWithBbl(t *testing.T) {
	a, runner, _, _ := newTestApp(t)

	require.NoError(t, execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-c", "/p/plain.json", "-o", "/p/diff.tex", "--bbl=build"))
	assert.Equal(t, expectedRewrite, runner.diffed[0])
}

func TestFileCommandDefaultProtects(t *testing.T) {
	a, runner, _, _ := newTestApp(t)

	require.NoError(t, execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-o", "/p/diff.tex"))
	assert.Contains(t, runner.diffed[0], "\\newcommand{\\ldiffentity}[1]{#1}\n\\begin{document}")
	assert.Contains(t, runner.diffed[0], `[\textit{Foo}, \ldiffentity{2010}, \ldiffentity{2011}]`)
}

func TestGitCommand(t *testing.T) {
	a, runner, _, _ := newTestApp(t)
	runner.git = map[string]string{
		"v1:p/paper.tex":   strings.ReplaceAll(paperTex, "\n", "\r\n"),
		"HEAD:p/paper.tex": paperTex,
	}

	// bib files are read from the working tree, relative to the document
	require.NoError(t, afero.WriteFile(a.fs, "p/refs.bib", []byte(paperBib), 0o644))

	require.NoError(t, execute(a, "git", "p/paper.tex", "v1", "-c", "/p/plain.json", "-o", "/p/diff.tex"))
	assert.Equal(t, []string{"git show v1:p/paper.tex", "git show HEAD:p/paper.tex"}, runner.calls[:2])
	assert.Equal(t, expectedRewrite, runner.diffed[0])
	assert.Equal(t, expectedRewrite, runner.diffed[1])
}

func TestGitCommandFailure(t *testing.T) {
	a, runner, _, _ := newTestApp(t)
	runner.git = map[string]string{}

	err := execute(a, "git", "p/paper.tex", "nope", "-o", "/p/diff.tex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "git returned with code 128")
}

func TestLatexdiffFailure(t *testing.T) {
	a, runner, _, _ := newTestApp(t)
	runner.exitCode = 2

	err := execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-o", "/p/diff.tex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "latexdiff returned with code 2")
}

func TestMissingBibFile(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	require.NoError(t, a.fs.Remove("/p/refs.bib"))

	err := execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-o", "/p/diff.tex")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bibtex file not found")
}

func TestVersion(t *testing.T) {
	a, _, stdout, _ := newTestApp(t)

	require.NoError(t, execute(a, "--version"))
	assert.Equal(t, "latexdiffcite version "+version+"\n", stdout.String())
}

func TestVerboseLogsToStderr(t *testing.T) {
	a, _, _, stderr := newTestApp(t)

	require.NoError(t, execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-v", "-o", "/p/diff.tex"))
	assert.Contains(t, stderr.String(), "processing old revision")
	assert.Contains(t, stderr.String(), "reading bibtex file")
}

func TestSilentHidesInfo(t *testing.T) {
	a, _, _, stderr := newTestApp(t)

	require.NoError(t, execute(a, "file", "/p/paper.tex", "/p/paper.tex", "-s", "-o", "/p/diff.tex"))
	assert.NotContains(t, stderr.String(), "processing old revision")
}

func TestBblPaths(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantOld string
		wantNew string
	}{
		{name: "no bbl", args: nil, wantOld: "", wantNew: ""},
		{name: "bbl without dir", args: []string{"--bbl"}, wantOld: "foo.bbl", wantNew: "bar.bbl"},
		{name: "bbl2 overrides", args: []string{"--bbl", "--bbl2=baz"}, wantOld: "foo.bbl", wantNew: "baz/bar.bbl"},
		{name: "bbl dir shared", args: []string{"-b=out"}, wantOld: "out/foo.bbl", wantNew: "out/bar.bbl"},
		{name: "bbl2 alone ignored", args: []string{"--bbl2=baz"}, wantOld: "", wantNew: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := &cobra.Command{Use: "file"}
			f := &commonFlags{}
			addCommonFlags(cmd, f)
			require.NoError(t, cmd.ParseFlags(tt.args))

			gotOld, gotNew := bblPaths(cmd, f, "foo", "bar")
			assert.Equal(t, tt.wantOld, gotOld)
			assert.Equal(t, tt.wantNew, gotNew)
		})
	}
}

func TestPreviewPlain(t *testing.T) {
	a, _, stdout, _ := newTestApp(t)

	require.NoError(t, execute(a, "preview", "/p/paper.tex", "-c", "/p/plain.json", "--plain"))
	assert.Equal(t, "[new] \\citep{foo2010, foo2011}\n    -> [\\textit{Foo}, 2010, 2011]\n", stdout.String())
}

func TestPreviewInteractive(t *testing.T) {
	a, _, _, _ := newTestApp(t)
	var got []ui.Entry
	a.tui = func(entries []ui.Entry, title string) error {
		got = entries
		assert.Equal(t, "/p/paper.tex", title)
		return nil
	}

	require.NoError(t, execute(a, "preview", "/p/paper.tex", "--bbl=build"))
	require.Len(t, got, 1)
	assert.Equal(t, []string{"foo2010", "foo2011"}, got[0].Keys)
}
