// Package bib resolves reference keys to author and year text, either from a
// .bbl snapshot or from the .bib files a document declares.
package bib

import (
	"regexp"
	"strings"

	"github.com/gubarz/latexdiffcite/internal/config"
)

// Reference is the resolved author and year text for one reference key
type Reference struct {
	Author string
	Year   string
}

var (
	authorSepRegex = regexp.MustCompile(`\s+and\s+`)
	braceRegex     = regexp.MustCompile(`[{}]`)
)

// FormatAuthorList joins surnames as "A", "A and B" or "A, B, and C"
func FormatAuthorList(surnames []string, opts config.Bib) string {
	n := len(surnames)
	switch n {
	case 0:
		return ""
	case 1:
		return surnames[0]
	}

	var b strings.Builder
	for i := 0; i < n-2; i++ {
		b.WriteString(surnames[i])
		b.WriteString(opts.SepAuthorsFirst)
	}
	b.WriteString(surnames[n-2])
	if n > 2 && opts.AuthorSerialComma {
		b.WriteString(",")
	}
	b.WriteString(opts.SepAuthorsLast)
	b.WriteString(surnames[n-1])
	return b.String()
}

// Surnames extracts one surname per author from a BibTeX author field.
// If any name is written "Last, First" every name is cut at its first
// comma, otherwise the last word of each name is taken.
func Surnames(field string) []string {
	authors := authorSepRegex.Split(field, -1)

	commaForm := false
	for _, a := range authors {
		if strings.Contains(a, ",") {
			commaForm = true
			break
		}
	}

	surnames := make([]string, 0, len(authors))
	for _, a := range authors {
		var s string
		if commaForm {
			s, _, _ = strings.Cut(a, ",")
		} else if words := strings.Fields(a); len(words) > 0 {
			s = words[len(words)-1]
		}
		surnames = append(surnames, braceRegex.ReplaceAllString(strings.TrimSpace(s), ""))
	}
	return surnames
}

// FormatAuthors renders an author field as "First et al." when it has more
// than MaxAuthors names, otherwise as a full surname list.
func FormatAuthors(field string, opts config.Bib) string {
	surnames := Surnames(field)
	if len(surnames) > opts.MaxAuthors {
		return surnames[0] + opts.EtAl
	}
	return FormatAuthorList(surnames, opts)
}
