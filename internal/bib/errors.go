package bib

import (
	"errors"
	"fmt"
)

// ErrTooManyDuplicates is returned when more than 26 references share one author/year pair
var ErrTooManyDuplicates = errors.New("more than 26 references share the same author and year")

// ResolutionError reports a reference key that could not be resolved to an author and year
type ResolutionError struct {
	Key    string
	Regex  string // bbl regex used, if any
	Path   string // bibliography file involved, if any
	Reason string
}

func (e *ResolutionError) Error() string {
	msg := fmt.Sprintf("reference '%s' %s", e.Key, e.Reason)
	if e.Regex != "" {
		msg += " using regex " + e.Regex
	}
	if e.Path != "" {
		msg += " (" + e.Path + ")"
	}
	return msg
}

// ConfigurationError reports a bad regex or a missing bibliography file
type ConfigurationError struct {
	Path string
	Err  error
}

func (e *ConfigurationError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
