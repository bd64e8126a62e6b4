package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/config"
)

// ============================================================================
// Runner Interface
// ============================================================================

// Runner runs an external program, writing its stdout to stdout
type Runner interface {
	Run(ctx context.Context, stdout io.Writer, name string, args ...string) error
}

// ExitError reports a program that exited with a non-zero code
type ExitError struct {
	Program string
	Code    int
	Stderr  string
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s returned with code %d. Error from %s:\n\n%s", e.Program, e.Code, e.Program, e.Stderr)
}

// systemRunner implements Runner using os/exec
type systemRunner struct{}

// Run executes the program and captures stderr for error reporting
func (systemRunner) Run(ctx context.Context, stdout io.Writer, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Program: name, Code: exitErr.ExitCode(), Stderr: stderr.String()}
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}

// ============================================================================
// Executor
// ============================================================================

// Executor runs git and latexdiff on behalf of the pipeline
type Executor struct {
	runner        Runner
	unixPathsep   bool
	latexdiffArgs []string
	log           *zap.Logger
}

// NewExecutor creates an executor using the git and latexdiff options in cfg
func NewExecutor(cfg *config.Config, log *zap.Logger) *Executor {
	return &Executor{
		runner:        systemRunner{},
		unixPathsep:   cfg.GitForceUnixPathsep,
		latexdiffArgs: cfg.LatexdiffArgList(),
		log:           log,
	}
}

// WithRunner sets a custom runner implementation (useful for testing)
func (e *Executor) WithRunner(r Runner) *Executor {
	e.runner = r
	return e
}

// ============================================================================
// Commands
// ============================================================================

// GitShowArg builds the REV:PATH argument for git show
func (e *Executor) GitShowArg(path, rev string) string {
	if e.unixPathsep {
		path = strings.ReplaceAll(path, `\`, "/")
	}
	return rev + ":" + path
}

// GitShow returns the contents of path at revision rev
func (e *Executor) GitShow(ctx context.Context, path, rev string) ([]byte, error) {
	arg := e.GitShowArg(path, rev)
	e.log.Debug("running git show", zap.String("arg", arg))

	var stdout bytes.Buffer
	if err := e.runner.Run(ctx, &stdout, "git", "show", arg); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}

// Latexdiff runs latexdiff on the two files and writes its output to out
func (e *Executor) Latexdiff(ctx context.Context, oldPath, newPath string, out io.Writer) error {
	args := append([]string{oldPath, newPath}, e.latexdiffArgs...)
	e.log.Info("running latexdiff " + strings.Join(args, " "))
	return e.runner.Run(ctx, out, "latexdiff", args...)
}

// ============================================================================
// Temporary Files
// ============================================================================

// TempFiles holds the rewritten revisions handed to latexdiff
type TempFiles struct {
	fs   afero.Fs
	Old  string
	New  string
	log  *zap.Logger
	done bool
}

// WriteTempFiles writes both rewritten revisions as UTF-8 to temporary files.
// Both files exist until Remove is called.
func WriteTempFiles(fs afero.Fs, oldText, newText string, log *zap.Logger) (*TempFiles, error) {
	t := &TempFiles{fs: fs, log: log}

	oldPath, err := writeTemp(fs, "tmp_old_*.tex", oldText)
	if err != nil {
		return nil, err
	}
	t.Old = oldPath
	log.Debug("created temp file", zap.String("path", oldPath))

	newPath, err := writeTemp(fs, "tmp_new_*.tex", newText)
	if err != nil {
		t.Remove()
		return nil, err
	}
	t.New = newPath
	log.Debug("created temp file", zap.String("path", newPath))
	return t, nil
}

func writeTemp(fs afero.Fs, pattern, text string) (string, error) {
	f, err := afero.TempFile(fs, "", pattern)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		_ = fs.Remove(f.Name())
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(f.Name())
		return "", fmt.Errorf("close temp file: %w", err)
	}
	return f.Name(), nil
}

// Remove deletes the temporary files. It is safe to call more than once.
func (t *TempFiles) Remove() {
	if t.done {
		return
	}
	t.done = true
	for _, path := range []string{t.Old, t.New} {
		if path == "" {
			continue
		}
		t.log.Debug("deleting temp file", zap.String("path", path))
		if err := t.fs.Remove(path); err != nil {
			t.log.Warn("could not delete temp file", zap.String("path", path), zap.Error(err))
		}
	}
}
