// Package revision holds the per-revision state and runs the citation
// rewriting pipeline over the old and new revisions of a document.
package revision

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/bib"
	"github.com/gubarz/latexdiffcite/internal/config"
	"github.com/gubarz/latexdiffcite/internal/parser"
	"github.com/gubarz/latexdiffcite/internal/render"
	"github.com/gubarz/latexdiffcite/internal/source"
)

// Name identifies one of the two revisions being compared
type Name int

const (
	Old Name = iota
	New
)

// Names lists the revisions in processing order
var Names = [...]Name{Old, New}

func (n Name) String() string {
	switch n {
	case Old:
		return "old"
	case New:
		return "new"
	default:
		return fmt.Sprintf("Name(%d)", int(n))
	}
}

// State is everything known about one revision. The pipeline fills Keys,
// Groups, Refs, Rendered and Output.
type State struct {
	Name Name
	Path string
	Tex  string
	// Bbl is the snapshot text; empty means references come from .bib files
	Bbl string

	Keys     []string
	Groups   map[string][]string
	Refs     map[string]bib.Reference
	Rendered []render.Rendered
	Output   string

	positions map[string]int
}

// Reference returns the resolved author/year text for key
func (s *State) Reference(key string) (bib.Reference, bool) {
	ref, ok := s.Refs[key]
	return ref, ok
}

// CaptureGroups returns the snapshot capture groups for key
func (s *State) CaptureGroups(key string) []string {
	return s.Groups[key]
}

// Position returns the 1-based index of key in the revision's key list
func (s *State) Position(key string) int {
	if s.positions == nil {
		s.positions = make(map[string]int, len(s.Keys))
		for i, k := range s.Keys {
			s.positions[k] = i + 1
		}
	}
	return s.positions[key]
}

// Pair holds the old and new revision, indexed by Name
type Pair [2]*State

// Load reads the document of one revision, and its snapshot when bblPath is
// not empty, through r.
func Load(ctx context.Context, r source.Reader, name Name, texPath, bblPath string) (*State, error) {
	tex, err := r.Read(ctx, texPath)
	if err != nil {
		return nil, err
	}
	s := &State{Name: name, Path: texPath, Tex: tex}
	if bblPath != "" {
		bbl, err := r.Read(ctx, bblPath)
		if err != nil {
			return nil, err
		}
		s.Bbl = bbl
	}
	return s, nil
}

// ============================================================================
// Processor
// ============================================================================

// Processor runs scan, resolve, render and finalize over a revision
type Processor struct {
	cfg      *config.Config
	parser   *parser.Parser
	renderer *render.Renderer
	resolver *bib.SourceResolver
	log      *zap.Logger
}

// NewProcessor creates a processor. Bibliography files are read from fs
// with decode.
func NewProcessor(cfg *config.Config, fs afero.Fs, decode bib.Decoder, log *zap.Logger) *Processor {
	return &Processor{
		cfg:      cfg,
		parser:   parser.NewParser(cfg.Commands()),
		renderer: render.NewRenderer(cfg, log),
		resolver: bib.NewSourceResolver(fs, cfg, decode, log),
		log:      log,
	}
}

// Process rewrites the citations of one revision into s.Output
func (p *Processor) Process(s *State) error {
	log := p.log.With(zap.Stringer("revision", s.Name))
	log.Info(fmt.Sprintf("processing %s revision", s.Name))

	log.Debug("getting all reference keys from cite commands")
	s.Keys = p.parser.RefKeys(s.Tex)
	s.positions = nil

	if s.Bbl != "" {
		log.Debug("retrieving regex matches from bbl")
		groups, err := bib.CaptureGroups(s.Keys, s.Bbl, p.cfg.Bbl.Regex, log)
		if err != nil {
			return fmt.Errorf("%s revision: %w", s.Name, err)
		}
		s.Groups = groups
		s.Refs = bib.FromSnapshot(s.Keys, groups, p.cfg.Bbl, log)
	} else {
		s.Groups = map[string][]string{}
		refs, err := p.resolver.Resolve(s.Keys, s.Tex, filepath.Dir(s.Path))
		if err != nil {
			return fmt.Errorf("%s revision: %w", s.Name, err)
		}
		s.Refs = refs
	}

	log.Debug("formatting and replacing references")
	out, rendered, err := p.renderer.Rewrite(s.Tex, s)
	if err != nil {
		return fmt.Errorf("%s revision: %w", s.Name, err)
	}
	s.Rendered = rendered
	s.Output = render.Finalize(out, s.Keys, p.cfg.RefSingleWord)
	return nil
}

// ProcessPair processes the old revision, then the new one
func (p *Processor) ProcessPair(pair Pair) error {
	for _, name := range Names {
		if pair[name] == nil {
			return fmt.Errorf("%s revision missing", name)
		}
		if err := p.Process(pair[name]); err != nil {
			return err
		}
	}
	return nil
}
