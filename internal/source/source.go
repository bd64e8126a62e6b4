// Package source reads revisions of a document from disk or from git and
// decodes them using the configured encoding.
package source

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"

	"github.com/gubarz/latexdiffcite/internal/bib"
)

// BblExt is the extension of bibliography snapshots
const BblExt = ".bbl"

// LookupEncoding resolves an encoding name such as "utf-8", "latin-1" or
// "ascii". A nil encoding means UTF-8.
func LookupEncoding(name string) (encoding.Encoding, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "", "utf-8", "utf8":
		return nil, nil
	}

	candidates := []string{n, strings.NewReplacer("-", "", "_", "").Replace(n)}
	for _, c := range candidates {
		if enc, err := ianaindex.IANA.Encoding(c); err == nil && enc != nil {
			return enc, nil
		}
	}
	for _, c := range candidates {
		if enc, err := htmlindex.Get(c); err == nil {
			return enc, nil
		}
	}
	return nil, fmt.Errorf("unknown encoding %q", name)
}

// NewDecoder returns a decoder for the named encoding. Decoded text always
// has LF line endings.
func NewDecoder(name string) (bib.Decoder, error) {
	if isASCII(name) {
		return func(data []byte) (string, error) {
			for i, b := range data {
				if b >= utf8.RuneSelf {
					return "", fmt.Errorf("non-ASCII byte 0x%x at offset %d, check the encoding option", b, i)
				}
			}
			return NormalizeNewlines(string(data)), nil
		}, nil
	}

	enc, err := LookupEncoding(name)
	if err != nil {
		return nil, err
	}
	if enc == unicode.UTF8 {
		enc = nil
	}

	return func(data []byte) (string, error) {
		if enc == nil {
			if !utf8.Valid(data) {
				return "", fmt.Errorf("invalid UTF-8 text, check the encoding option")
			}
			return NormalizeNewlines(string(data)), nil
		}
		out, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			return "", fmt.Errorf("decode %s: %w", name, err)
		}
		return NormalizeNewlines(string(out)), nil
	}, nil
}

func isASCII(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "ascii", "us-ascii":
		return true
	}
	return false
}

// NormalizeNewlines converts CRLF line endings to LF
func NormalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// BblPath derives the snapshot path for a document: the .bbl file with the
// document's base name in dir, relative to the document's directory.
func BblPath(texPath, dir string) string {
	base := filepath.Base(texPath)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + BblExt
	return filepath.Join(filepath.Dir(texPath), dir, name)
}

// ============================================================================
// Readers
// ============================================================================

// Reader loads the text of one file of one revision
type Reader interface {
	Read(ctx context.Context, path string) (string, error)
}

// FileReader reads files from a filesystem
type FileReader struct {
	fs     afero.Fs
	decode bib.Decoder
	log    *zap.Logger
}

// NewFileReader creates a reader for files on fs
func NewFileReader(fs afero.Fs, decode bib.Decoder, log *zap.Logger) *FileReader {
	return &FileReader{fs: fs, decode: decode, log: log}
}

// Read reads and decodes path
func (r *FileReader) Read(_ context.Context, path string) (string, error) {
	r.log.Debug("reading file", zap.String("path", path))
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	text, err := r.decode(data)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return text, nil
}

// Shower returns the contents of a file at a git revision
type Shower interface {
	GitShow(ctx context.Context, path, rev string) ([]byte, error)
}

// GitReader reads files as they were at one git revision
type GitReader struct {
	git    Shower
	rev    string
	decode bib.Decoder
	log    *zap.Logger
}

// NewGitReader creates a reader for revision rev
func NewGitReader(git Shower, rev string, decode bib.Decoder, log *zap.Logger) *GitReader {
	return &GitReader{git: git, rev: rev, decode: decode, log: log}
}

// Read runs git show for path at the reader's revision and decodes the result
func (r *GitReader) Read(ctx context.Context, path string) (string, error) {
	r.log.Debug("reading file from git", zap.String("rev", r.rev), zap.String("path", path))
	data, err := r.git.GitShow(ctx, path, r.rev)
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", r.rev, path, err)
	}
	text, err := r.decode(data)
	if err != nil {
		return "", fmt.Errorf("git show %s:%s: %w", r.rev, path, err)
	}
	return text, nil
}
