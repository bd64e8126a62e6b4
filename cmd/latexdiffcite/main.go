package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/bib"
	"github.com/gubarz/latexdiffcite/internal/config"
	"github.com/gubarz/latexdiffcite/internal/executor"
	"github.com/gubarz/latexdiffcite/internal/logging"
	"github.com/gubarz/latexdiffcite/internal/revision"
	"github.com/gubarz/latexdiffcite/internal/source"
	"github.com/gubarz/latexdiffcite/internal/ui"
)

var version = "1.0.6"

// app carries the process-wide dependencies shared by all subcommands
type app struct {
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	runner executor.Runner
	tui    func(entries []ui.Entry, title string) error
}

func newApp() *app {
	return &app{
		fs:     afero.NewOsFs(),
		stdout: os.Stdout,
		stderr: os.Stderr,
		tui:    ui.Run,
	}
}

// commonFlags are accepted by every subcommand
type commonFlags struct {
	verbose    bool
	silent     bool
	logFile    string
	output     string
	configFile string
	bbl        string
	bbl2       string
}

func addCommonFlags(cmd *cobra.Command, f *commonFlags) {
	flags := cmd.Flags()
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "show debug log on screen")
	flags.BoolVarP(&f.silent, "silent", "s", false, "only show warnings on screen")
	flags.StringVarP(&f.logFile, "log", "l", "", "enable logging to LOGFILE, default "+logging.DefaultFile)
	flags.Lookup("log").NoOptDefVal = logging.DefaultFile
	flags.StringVarP(&f.configFile, "config", "c", "", "config file, see documentation for options")
	flags.StringVarP(&f.bbl, "bbl", "b", "", "directory of the bbl file relative to the tex file (default: same directory). "+
		"The bbl file is used for formatting references instead of the bib files")
	flags.Lookup("bbl").NoOptDefVal = "."
	flags.StringVar(&f.bbl2, "bbl2", "", "directory of the new bbl file if different from the old one")
	flags.Lookup("bbl2").NoOptDefVal = "."
}

// session is the logger, config and decoder for one run
type session struct {
	log    *zap.Logger
	cfg    *config.Config
	decode bib.Decoder
	close  func()
}

func (a *app) startSession(f *commonFlags) (*session, error) {
	log, closeLog, err := logging.New(logging.Options{
		Verbose: f.verbose,
		Silent:  f.silent,
		File:    f.logFile,
		Console: a.stderr,
	})
	if err != nil {
		return nil, err
	}

	if home := config.HomeConfigPath(); home != "" {
		if ok, _ := afero.Exists(a.fs, home); ok {
			log.Debug("loading config", zap.String("path", home))
		}
	}
	if f.configFile != "" {
		log.Debug("loading config", zap.String("path", f.configFile))
	}
	cfg, err := config.Load(a.fs, f.configFile)
	if err != nil {
		closeLog()
		return nil, err
	}

	decode, err := source.NewDecoder(cfg.Encoding)
	if err != nil {
		closeLog()
		return nil, err
	}
	return &session{log: log, cfg: cfg, decode: decode, close: closeLog}, nil
}

func (a *app) executor(s *session) *executor.Executor {
	e := executor.NewExecutor(s.cfg, s.log)
	if a.runner != nil {
		e = e.WithRunner(a.runner)
	}
	return e
}

// bblPaths derives the snapshot paths, or empty strings when --bbl is not given
func bblPaths(cmd *cobra.Command, f *commonFlags, texOld, texNew string) (string, string) {
	if !cmd.Flags().Changed("bbl") {
		return "", ""
	}
	dir2 := f.bbl
	if cmd.Flags().Changed("bbl2") {
		dir2 = f.bbl2
	}
	return source.BblPath(texOld, f.bbl), source.BblPath(texNew, dir2)
}

// ============================================================================
// Commands
// ============================================================================

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "latexdiffcite",
		Short: "Replaces citation commands with formatted references and runs latexdiff",
		Long: `Replaces \cite{} commands in two revisions of a LaTeX document with
properly formatted references and calls latexdiff on the result, so that
changed citations show up as changed text.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetVersionTemplate("latexdiffcite version {{.Version}}\n")
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	root.AddCommand(newFileCmd(a), newGitCmd(a), newPreviewCmd(a))
	return root
}

func newFileCmd(a *app) *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "file FILE_OLD FILE_NEW",
		Short: "compare two files",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.startSession(f)
			if err != nil {
				return err
			}
			defer s.close()

			texOld, texNew := args[0], args[1]
			bblOld, bblNew := bblPaths(cmd, f, texOld, texNew)
			r := source.NewFileReader(a.fs, s.decode, s.log)
			return a.run(cmd.Context(), s, f, r, r, texOld, texNew, bblOld, bblNew)
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().StringVarP(&f.output, "output", "o", "diff.tex", "output file")
	return cmd
}

func newGitCmd(a *app) *cobra.Command {
	f := &commonFlags{}
	cmd := &cobra.Command{
		Use:   "git FILE REV_OLD [REV_NEW] [FILE_NEW]",
		Short: "compare revisions of a file in a git repository",
		Long: `Compares FILE at REV_OLD with FILE_NEW (default FILE) at REV_NEW
(default HEAD). FILE is relative to the base of the git repository.`,
		Args: cobra.RangeArgs(2, 4),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.startSession(f)
			if err != nil {
				return err
			}
			defer s.close()

			texOld, revOld := args[0], args[1]
			revNew, texNew := "HEAD", texOld
			if len(args) > 2 {
				revNew = args[2]
			}
			if len(args) > 3 {
				texNew = args[3]
			}
			bblOld, bblNew := bblPaths(cmd, f, texOld, texNew)

			s.log.Debug("getting revisions from git")
			git := a.executor(s)
			rOld := source.NewGitReader(git, revOld, s.decode, s.log)
			rNew := source.NewGitReader(git, revNew, s.decode, s.log)
			return a.run(cmd.Context(), s, f, rOld, rNew, texOld, texNew, bblOld, bblNew)
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().StringVarP(&f.output, "output", "o", "diff.tex", "output file")
	return cmd
}

func newPreviewCmd(a *app) *cobra.Command {
	f := &commonFlags{}
	var plain bool
	cmd := &cobra.Command{
		Use:   "preview FILE",
		Short: "show how each citation command in FILE is rewritten",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := a.startSession(f)
			if err != nil {
				return err
			}
			defer s.close()

			tex := args[0]
			bbl, _ := bblPaths(cmd, f, tex, tex)
			r := source.NewFileReader(a.fs, s.decode, s.log)
			state, err := revision.Load(cmd.Context(), r, revision.New, tex, bbl)
			if err != nil {
				return err
			}
			if err := revision.NewProcessor(s.cfg, a.fs, s.decode, s.log).Process(state); err != nil {
				return err
			}

			entries := ui.EntriesFromState(state, s.cfg)
			if plain {
				return ui.PrintPlain(a.stdout, entries)
			}
			return a.tui(entries, tex)
		},
	}
	addCommonFlags(cmd, f)
	cmd.Flags().BoolVar(&plain, "plain", false, "print the rewritten commands instead of opening the viewer")
	return cmd
}

// run processes both revisions and hands the results to latexdiff
func (a *app) run(ctx context.Context, s *session, f *commonFlags, rOld, rNew source.Reader, texOld, texNew, bblOld, bblNew string) error {
	s.log.Debug("paths",
		zap.String("old_tex", texOld), zap.String("new_tex", texNew),
		zap.String("old_bbl", bblOld), zap.String("new_bbl", bblNew),
		zap.String("output", f.output))

	old, err := revision.Load(ctx, rOld, revision.Old, texOld, bblOld)
	if err != nil {
		return err
	}
	cur, err := revision.Load(ctx, rNew, revision.New, texNew, bblNew)
	if err != nil {
		return err
	}

	pair := revision.Pair{revision.Old: old, revision.New: cur}
	if err := revision.NewProcessor(s.cfg, a.fs, s.decode, s.log).ProcessPair(pair); err != nil {
		return err
	}

	tmp, err := executor.WriteTempFiles(a.fs, old.Output, cur.Output, s.log)
	if err != nil {
		return err
	}
	defer tmp.Remove()

	s.log.Debug("sending result to output file", zap.String("path", f.output))
	out, err := a.fs.Create(f.output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer out.Close()

	if err := a.executor(s).Latexdiff(ctx, tmp.Old, tmp.New, out); err != nil {
		return err
	}
	s.log.Info("all done!")
	return nil
}

func main() {
	a := newApp()
	if err := newRootCmd(a).Execute(); err != nil {
		fmt.Fprintf(a.stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
