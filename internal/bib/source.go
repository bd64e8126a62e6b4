package bib

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/config"
)

// BibExt is appended to \bibliography arguments that lack it
const BibExt = ".bib"

var (
	bibliographyRegex = regexp.MustCompile(`(?m)^[^%\n]*\\bibliography\s*\{(.*?)\}`)
	fileSepRegex      = regexp.MustCompile(`\s*,\s*`)
	authorFieldRegex  = regexp.MustCompile(`(?ims)author\s*=\s*[{"]((?:[^{}]+?|\{[^}]+?\})+?)[}"]`)
	yearFieldRegex    = regexp.MustCompile(`(?i)\s*year\s*=\s*["{]?\s*(\d+)\s*["}]?`)
)

// Source is the text of one bibliography file
type Source struct {
	Path string
	Text string
}

// Decoder turns raw file bytes into text
type Decoder func([]byte) (string, error)

// SourceResolver resolves keys from the .bib files declared by a document
type SourceResolver struct {
	fs     afero.Fs
	cfg    *config.Config
	decode Decoder
	log    *zap.Logger
}

// NewSourceResolver creates a resolver reading bibliography files from fs
func NewSourceResolver(fs afero.Fs, cfg *config.Config, decode Decoder, log *zap.Logger) *SourceResolver {
	if decode == nil {
		decode = func(b []byte) (string, error) { return string(b), nil }
	}
	return &SourceResolver{fs: fs, cfg: cfg, decode: decode, log: log}
}

// BibliographyArg returns the argument of the first uncommented \bibliography command
func BibliographyArg(doc string) (string, error) {
	m := bibliographyRegex.FindStringSubmatch(doc)
	if m == nil {
		return "", &ConfigurationError{Err: fmt.Errorf("no \\bibliography{} command found in document")}
	}
	return m[1], nil
}

// FindBibFiles turns a \bibliography argument into file paths relative to
// the document directory and checks that each one exists.
func (r *SourceResolver) FindBibFiles(arg, docDir string) ([]string, error) {
	var paths []string
	for _, name := range fileSepRegex.Split(strings.TrimSpace(arg), -1) {
		if !strings.HasSuffix(name, BibExt) {
			name += BibExt
		}
		path := filepath.Join(docDir, name)
		r.log.Debug("looking for bibtex file", zap.String("file", name), zap.String("dir", docDir))

		ok, err := afero.Exists(r.fs, path)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		if !ok {
			abs, _ := filepath.Abs(path)
			return nil, &ConfigurationError{
				Path: path,
				Err:  fmt.Errorf("bibtex file not found with or without %s extension (%s)", BibExt, abs),
			}
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// ReadSources locates and reads every bibliography file the document declares
func (r *SourceResolver) ReadSources(doc, docDir string) ([]Source, error) {
	arg, err := BibliographyArg(doc)
	if err != nil {
		return nil, err
	}
	r.log.Debug("bibliography argument found", zap.String("arg", arg))

	paths, err := r.FindBibFiles(arg, docDir)
	if err != nil {
		return nil, err
	}

	sources := make([]Source, 0, len(paths))
	for _, path := range paths {
		r.log.Debug("reading bibtex file", zap.String("path", path))
		data, err := afero.ReadFile(r.fs, path)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		text, err := r.decode(data)
		if err != nil {
			return nil, &ConfigurationError{Path: path, Err: err}
		}
		sources = append(sources, Source{Path: path, Text: text})
	}
	return sources, nil
}

// Resolve returns author/year text for every key. When no template uses
// %AUTHOR% or %YEAR% the bibliography is not read and every key gets empty text.
func (r *SourceResolver) Resolve(keys []string, doc, docDir string) (map[string]Reference, error) {
	refs := make(map[string]Reference, len(keys))
	if !r.cfg.UsesAuthorYear() {
		r.log.Debug("%AUTHOR% and %YEAR% tokens not used in any format, skipping bib entries")
		for _, key := range keys {
			refs[key] = Reference{}
		}
		return refs, nil
	}

	r.log.Debug("creating author/year strings based on bib entries")
	sources, err := r.ReadSources(doc, docDir)
	if err != nil {
		return nil, err
	}
	refs, err = ResolveEntries(keys, sources, r.cfg.Bib, r.log)
	if err != nil {
		return nil, err
	}
	if err := Disambiguate(keys, refs, r.log); err != nil {
		return nil, err
	}
	return refs, nil
}

// ResolveEntries looks up each key in the first source whose text contains it
func ResolveEntries(keys []string, sources []Source, opts config.Bib, log *zap.Logger) (map[string]Reference, error) {
	refs := make(map[string]Reference, len(keys))
	for _, key := range keys {
		found := false
		for _, src := range sources {
			if !strings.Contains(src.Text, key) {
				continue
			}
			ref, err := ParseEntry(key, src)
			if err != nil {
				return nil, err
			}
			refs[key] = Reference{Author: FormatAuthors(ref.Author, opts), Year: ref.Year}
			log.Debug("reference found in bibtex file", zap.String("key", key), zap.String("path", src.Path),
				zap.String("author", refs[key].Author), zap.String("year", refs[key].Year))
			found = true
			break
		}
		if !found {
			return nil, &ResolutionError{Key: key, Reason: "not found in any bibtex file"}
		}
	}
	return refs, nil
}

// ParseEntry extracts the raw author field and the year of the entry for key.
// The entry runs from its @type{key, line to the next line holding only "}".
func ParseEntry(key string, src Source) (Reference, error) {
	entryRegex := regexp.MustCompile(`(?ms)^\s*@\s*\w+\s*\{\s*` + regexp.QuoteMeta(key) + `\s*,.*?^\}`)
	entry := entryRegex.FindString(src.Text)
	if entry == "" {
		return Reference{}, &ResolutionError{Key: key, Path: src.Path, Reason: "has no parsable entry in bibtex file"}
	}

	author := authorFieldRegex.FindStringSubmatch(entry)
	if author == nil {
		return Reference{}, &ResolutionError{Key: key, Path: src.Path, Reason: "has no author field"}
	}
	year := yearFieldRegex.FindStringSubmatch(entry)
	if year == nil {
		return Reference{}, &ResolutionError{Key: key, Path: src.Path, Reason: "has no year field"}
	}
	return Reference{Author: author[1], Year: year[1]}, nil
}
