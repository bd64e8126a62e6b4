// Package render rewrites citation commands into formatted author/year or
// numeric text and finalizes the rewritten document for latexdiff.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/bib"
	"github.com/gubarz/latexdiffcite/internal/config"
	"github.com/gubarz/latexdiffcite/internal/parser"
)

// Protection wrapper that makes latexdiff treat a reference as one word
const (
	ProtectOpen  = `\ldiffentity{`
	ProtectClose = `}`
)

// yearPrefixLen is the part of a year compared when merging same-author years
const yearPrefixLen = 4

// Lookup gives the renderer access to one revision's resolved references
type Lookup interface {
	Reference(key string) (bib.Reference, bool)
	CaptureGroups(key string) []string
	Position(key string) int
}

// Rendered pairs a citation command with the text that replaced it
type Rendered struct {
	Invocation parser.Invocation
	Output     string
}

// Renderer formats citation commands according to the configured templates
type Renderer struct {
	cfg    *config.Config
	parser *parser.Parser
	log    *zap.Logger
}

// NewRenderer creates a renderer for the commands in cfg
func NewRenderer(cfg *config.Config, log *zap.Logger) *Renderer {
	return &Renderer{
		cfg:    cfg,
		parser: parser.NewParser(cfg.Commands()),
		log:    log,
	}
}

// Rewrite replaces every citation command in doc with its rendered text.
// Identical commands are replaced everywhere at once.
func (r *Renderer) Rewrite(doc string, refs Lookup) (string, []Rendered, error) {
	var rendered []Rendered
	for _, inv := range r.parser.Invocations(doc) {
		r.log.Debug("replacing citation", zap.String("command", inv.Text))
		out, err := r.Render(inv, refs)
		if err != nil {
			return "", nil, err
		}
		doc = strings.ReplaceAll(doc, inv.Text, out)
		rendered = append(rendered, Rendered{Invocation: inv, Output: out})
	}
	return doc, rendered, nil
}

// Render formats a single citation command
func (r *Renderer) Render(inv parser.Invocation, refs Lookup) (string, error) {
	f, ok := r.cfg.CmdFormat[inv.Command]
	if !ok {
		return "", fmt.Errorf("no format configured for \\%s", inv.Command)
	}

	prenote, postnote := inv.Prenote, inv.Postnote
	if (prenote != "" || postnote != "") && !f.AllowNotes {
		r.log.Warn(fmt.Sprintf("postnotes/prenotes are not supported for \\%s{} and will be ignored", inv.Command),
			zap.String("command", inv.Text))
		prenote, postnote = "", ""
	}

	open, close := "", ""
	if r.cfg.RefSingleWord {
		open, close = ProtectOpen, ProtectClose
	}

	lookup := func(key string) (bib.Reference, error) {
		ref, ok := refs.Reference(key)
		if !ok {
			return bib.Reference{}, &bib.ResolutionError{Key: key, Reason: "was not resolved before rendering"}
		}
		return ref, nil
	}
	// sameAuthor reports whether the next queued key continues the author of prev
	sameAuthor := func(queue []string, prev bib.Reference) (bib.Reference, bool, error) {
		if len(queue) == 0 || prev.Author == "" {
			return bib.Reference{}, false, nil
		}
		next, err := lookup(queue[0])
		if err != nil {
			return bib.Reference{}, false, err
		}
		return next, next.Author == prev.Author, nil
	}

	var b strings.Builder
	b.WriteString(f.CiteStart)
	if prenote != "" {
		b.WriteString(prenote)
		b.WriteString(f.SepPrenote)
	}

	queue := append([]string(nil), inv.Keys...)
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		ref, err := lookup(key)
		if err != nil {
			return "", err
		}

		// a run of same-author keys only protects the individual years
		_, merged, err := sameAuthor(queue, ref)
		if err != nil {
			return "", err
		}
		if !merged {
			b.WriteString(open)
		}

		groups := refs.CaptureGroups(key)
		author := bib.ReplaceCaptureGroups(f.Author, groups)
		author = strings.ReplaceAll(author, "%AUTHOR%", ref.Author)
		author = strings.ReplaceAll(author, "%NUMERIC%", strconv.Itoa(refs.Position(key)))
		b.WriteString(author)
		b.WriteString(f.SepAuthorYear)

		year := bib.ReplaceCaptureGroups(f.Year, groups)
		token := open + ref.Year + close
		prev := ref
		for {
			next, same, err := sameAuthor(queue, prev)
			if err != nil {
				return "", err
			}
			if !same {
				break
			}
			queue = queue[1:]
			token += f.SepSameAuthorYear
			prevPrefix, _ := splitYear(prev.Year)
			nextPrefix, nextRest := splitYear(next.Year)
			if nextPrefix == prevPrefix {
				token += open + nextRest + close
			} else {
				token += open + next.Year + close
			}
			prev = next
		}
		b.WriteString(strings.ReplaceAll(year, "%YEAR%", token))

		if !merged {
			b.WriteString(close)
		}
		if len(queue) > 0 {
			b.WriteString(f.SepRef)
		}
	}

	if postnote != "" {
		b.WriteString(f.SepPostnote)
		b.WriteString(postnote)
	}
	b.WriteString(f.CiteEnd)

	r.log.Debug("rendered citation", zap.String("result", b.String()))
	return b.String(), nil
}

// splitYear splits a year into its first four characters and the rest.
// Shorter years are all prefix.
func splitYear(year string) (prefix, rest string) {
	runes := []rune(year)
	if len(runes) <= yearPrefixLen {
		return year, ""
	}
	return string(runes[:yearPrefixLen]), string(runes[yearPrefixLen:])
}
