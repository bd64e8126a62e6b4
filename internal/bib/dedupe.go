package bib

import (
	"fmt"

	"go.uber.org/zap"
)

const suffixLetters = "abcdefghijklmnopqrstuvwxyz"

// Disambiguate appends a, b, c, ... to the years of references sharing the
// same author and year, in the order their keys first appear. References
// with empty author or year are never treated as duplicates.
func Disambiguate(keys []string, refs map[string]Reference, log *zap.Logger) error {
	var order []Reference
	groups := make(map[Reference][]string)
	for _, key := range keys {
		ref, ok := refs[key]
		if !ok || ref.Author == "" || ref.Year == "" {
			continue
		}
		if _, seen := groups[ref]; !seen {
			order = append(order, ref)
		}
		groups[ref] = append(groups[ref], key)
	}

	for _, ref := range order {
		members := groups[ref]
		if len(members) < 2 {
			continue
		}
		if len(members) > len(suffixLetters) {
			return fmt.Errorf("%w: %s, %s (starting at '%s')", ErrTooManyDuplicates, ref.Author, ref.Year, members[len(suffixLetters)])
		}
		for i, key := range members {
			year := ref.Year + string(suffixLetters[i])
			log.Debug("formatting duplicate", zap.String("key", key), zap.String("author", ref.Author), zap.String("year", year))
			refs[key] = Reference{Author: ref.Author, Year: year}
		}
	}
	return nil
}
