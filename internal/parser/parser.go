package parser

import (
	"regexp"
	"strings"
)

// Invocation represents a single citation command found in a document
type Invocation struct {
	Text     string   // Full matched command text, e.g. \citep[e.g.][]{foo,bar}
	Command  string   // Command name without backslash
	Prenote  string   // Text of the first of two bracket groups
	Postnote string   // Text of the only or second bracket group
	Keys     []string // Reference keys in argument order, repeats kept
}

var (
	// A % not preceded by a backslash starts a comment running to end of line
	commentRegex = regexp.MustCompile(`(?m)(^|[^\\])%.*`)
	keySepRegex  = regexp.MustCompile(`\s*,\s*`)
	notesRegex   = regexp.MustCompile(`(?s)^(?:\[(.*?)\])?\s*(?:\[(.*?)\])?`)
)

// Parser finds citation commands for a fixed set of command names
type Parser struct {
	commands []string
	argRegex *regexp.Regexp
	cmdRegex *regexp.Regexp
}

// NewParser creates a parser recognizing the given command names. Names are
// tried in the given order, so pass longer names first.
func NewParser(commands []string) *Parser {
	quoted := make([]string, len(commands))
	for i, c := range commands {
		quoted[i] = regexp.QuoteMeta(c)
	}
	alt := strings.Join(quoted, "|")
	if alt == "" {
		// no commands: match nothing
		alt = `[^\s\S]`
	}
	return &Parser{
		commands: commands,
		argRegex: regexp.MustCompile(`(?s)\\(?:` + alt + `)\s*(?:\[[^\]]*?\]\s*){0,2}\{(.*?)\}`),
		cmdRegex: regexp.MustCompile(`(?s)\\(` + alt + `)\s*((?:\[[^\]]*?\]\s*){0,2})\{(.*?)\}`),
	}
}

// Commands returns the command names this parser recognizes
func (p *Parser) Commands() []string {
	return p.commands
}

// StripComments removes everything after an unescaped % on each line
func StripComments(s string) string {
	return commentRegex.ReplaceAllString(s, "$1")
}

// SplitKeys splits a citation argument into reference keys
func SplitKeys(arg string) []string {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return nil
	}
	var keys []string
	for _, k := range keySepRegex.Split(arg, -1) {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// RefKeys returns every unique reference key cited in the document, in
// order of first appearance. Commented-out citations are ignored.
func (p *Parser) RefKeys(doc string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, m := range p.argRegex.FindAllStringSubmatch(StripComments(doc), -1) {
		for _, k := range SplitKeys(m[1]) {
			if seen[k] {
				continue
			}
			seen[k] = true
			keys = append(keys, k)
		}
	}
	return keys
}

// Invocations returns every citation command in the document, in order
func (p *Parser) Invocations(doc string) []Invocation {
	var out []Invocation
	for _, m := range p.cmdRegex.FindAllStringSubmatch(StripComments(doc), -1) {
		inv := Invocation{
			Text:    m[0],
			Command: m[1],
			Keys:    SplitKeys(m[3]),
		}
		inv.Prenote, inv.Postnote = parseNotes(m[2])
		out = append(out, inv)
	}
	return out
}

// parseNotes maps bracket groups to notes: a single group is the postnote,
// two groups are prenote and postnote.
func parseNotes(opt string) (prenote, postnote string) {
	idx := notesRegex.FindStringSubmatchIndex(opt)
	if idx == nil {
		return "", ""
	}
	group := func(n int) (string, bool) {
		if idx[2*n] < 0 {
			return "", false
		}
		return opt[idx[2*n]:idx[2*n+1]], true
	}
	first, _ := group(1)
	second, ok := group(2)
	if !ok {
		return "", first
	}
	return first, second
}
