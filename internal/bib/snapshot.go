package bib

import (
	"fmt"
	"strings"

	"github.com/dlclark/regexp2"
	"go.uber.org/zap"

	"github.com/gubarz/latexdiffcite/internal/config"
)

// RefKeyToken is replaced by the reference key in the bbl regex
const RefKeyToken = "%REFKEY%"

// CaptureGroups matches the bbl regex for each key against the snapshot text
// and returns the captured groups per key. Groups that did not participate
// in the match are empty strings.
func CaptureGroups(keys []string, bbl, regexTemplate string, log *zap.Logger) (map[string][]string, error) {
	groups := make(map[string][]string, len(keys))
	for _, key := range keys {
		if !strings.Contains(bbl, key) {
			return nil, &ResolutionError{Key: key, Reason: "not present in bbl file"}
		}

		expr := strings.ReplaceAll(regexTemplate, RefKeyToken, key)
		log.Debug("looking for reference in bbl", zap.String("key", key), zap.String("regex", expr))

		re, err := regexp2.Compile(expr, regexp2.Singleline|regexp2.Multiline)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("invalid bbl regex %q: %w", expr, err)}
		}
		m, err := re.FindStringMatch(bbl)
		if err != nil {
			return nil, &ConfigurationError{Err: fmt.Errorf("matching bbl regex %q: %w", expr, err)}
		}
		if m == nil {
			return nil, &ResolutionError{Key: key, Regex: expr, Reason: "has no match in bbl file"}
		}

		all := m.Groups()
		captured := make([]string, 0, len(all)-1)
		for _, g := range all[1:] {
			if len(g.Captures) == 0 {
				captured = append(captured, "")
				continue
			}
			captured = append(captured, g.String())
		}
		groups[key] = captured
		log.Debug("captured groups", zap.String("key", key), zap.Strings("groups", captured))
	}
	return groups, nil
}

// ReplaceCaptureGroups substitutes %CG1%, %CG2%, ... with the captured groups
func ReplaceCaptureGroups(s string, groups []string) string {
	for i, g := range groups {
		s = strings.ReplaceAll(s, fmt.Sprintf("%%CG%d%%", i+1), g)
	}
	return s
}

// FromSnapshot builds author/year text from captured groups using the bbl templates
func FromSnapshot(keys []string, groups map[string][]string, opts config.Bbl, log *zap.Logger) map[string]Reference {
	refs := make(map[string]Reference, len(keys))
	for _, key := range keys {
		ref := Reference{
			Author: ReplaceCaptureGroups(opts.Author, groups[key]),
			Year:   ReplaceCaptureGroups(opts.Year, groups[key]),
		}
		refs[key] = ref
		log.Debug("formatted tokens from bbl", zap.String("key", key),
			zap.String("author", ref.Author), zap.String("year", ref.Year))
	}
	return refs
}
