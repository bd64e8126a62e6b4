package render

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/gubarz/latexdiffcite/internal/bib"
	"github.com/gubarz/latexdiffcite/internal/config"
	"github.com/gubarz/latexdiffcite/internal/parser"
)

type mapLookup struct {
	keys   []string
	refs   map[string]bib.Reference
	groups map[string][]string
}

func (m mapLookup) Reference(key string) (bib.Reference, bool) {
	ref, ok := m.refs[key]
	return ref, ok
}

func (m mapLookup) CaptureGroups(key string) []string { return m.groups[key] }

func (m mapLookup) Position(key string) int {
	for i, k := range m.keys {
		if k == key {
			return i + 1
		}
	}
	return 0
}

var resolved = mapLookup{
	keys: []string{"foo2010", "foo2011lorem", "foo2011ipsum", "foo2012", "foo2011dolor", "bar2013"},
	refs: map[string]bib.Reference{
		"foo2010":      {Author: "Foo", Year: "2010"},
		"foo2011lorem": {Author: "Foo and Bar", Year: "2011a"},
		"foo2011ipsum": {Author: "Foo and Bar", Year: "2011b"},
		"foo2012":      {Author: "Foo and Bar", Year: "2012"},
		"foo2011dolor": {Author: "Foo et al.", Year: "2011"},
		"bar2013":      {Author: "Bar and Baz", Year: "2013"},
	},
}

func plainConfig() *config.Config {
	cfg := config.Default()
	cfg.RefSingleWord = false
	return cfg
}

func protectedConfig() *config.Config {
	cfg := config.Default()
	cfg.RefSingleWord = true
	cfg.CmdFormat["citep"] = config.Format{
		CiteStart:         "(",
		SepPrenote:        " ",
		Author:            `\textit{%AUTHOR%}`,
		SepAuthorYear:     " ",
		Year:              "%YEAR%",
		SepSameAuthorYear: " ",
		SepRef:            "; ",
		SepPostnote:       ", ",
		CiteEnd:           ")",
		AllowNotes:        true,
	}
	cfg.CmdFormat["citet"] = config.Format{
		Author:        `\textit{%AUTHOR%}`,
		SepAuthorYear: " ",
		Year:          "(%YEAR%)",
		SepRef:        "; ",
	}
	return cfg
}

func numericConfig() *config.Config {
	cfg := config.Default()
	cfg.RefSingleWord = false
	cfg.CmdFormat = map[string]config.Format{
		"citep": {CiteStart: "[", SepPrenote: " ", Author: "%NUMERIC%", SepRef: ", ", SepPostnote: ", ", CiteEnd: "]", AllowNotes: true},
		"citet": {CiteStart: "[", Author: "%NUMERIC%", SepRef: ", ", CiteEnd: "]"},
	}
	return cfg
}

func TestRender(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *config.Config
		refs     mapLookup
		inv      parser.Invocation
		expected string
	}{
		{
			name: "same author years merge",
			cfg:  plainConfig(),
			refs: resolved,
			inv: parser.Invocation{Command: "citep",
				Keys: []string{"foo2010", "foo2011lorem", "foo2011ipsum", "foo2012", "foo2011dolor", "bar2013"}},
			expected: `[\textit{Foo}, 2010; \textit{Foo and Bar}, 2011a, b, 2012; \textit{Foo et al.}, 2011; \textit{Bar and Baz}, 2013]`,
		},
		{
			name:     "citet single key",
			cfg:      plainConfig(),
			refs:     resolved,
			inv:      parser.Invocation{Command: "citet", Keys: []string{"foo2010"}},
			expected: `\textit{Foo} [2010]`,
		},
		{
			name:     "prenote only",
			cfg:      plainConfig(),
			refs:     resolved,
			inv:      parser.Invocation{Command: "citep", Prenote: "e.g.", Keys: []string{"foo2011lorem"}},
			expected: `[e.g. \textit{Foo and Bar}, 2011a]`,
		},
		{
			name: "prenote and postnote",
			cfg:  plainConfig(),
			refs: resolved,
			inv: parser.Invocation{Command: "citep", Prenote: "e.g.", Postnote: "and references therein",
				Keys: []string{"foo2011ipsum", "foo2011dolor"}},
			expected: `[e.g. \textit{Foo and Bar}, 2011b; \textit{Foo et al.}, 2011, and references therein]`,
		},
		{
			name:     "postnote only",
			cfg:      plainConfig(),
			refs:     resolved,
			inv:      parser.Invocation{Command: "citep", Postnote: "and references therein", Keys: []string{"foo2010"}},
			expected: `[\textit{Foo}, 2010, and references therein]`,
		},
		{
			name: "protected",
			cfg:  protectedConfig(),
			refs: resolved,
			inv: parser.Invocation{Command: "citep",
				Keys: []string{"foo2010", "foo2011lorem", "foo2011ipsum", "foo2012", "foo2011dolor", "bar2013"}},
			expected: `(\ldiffentity{\textit{Foo} \ldiffentity{2010}}; \textit{Foo and Bar} \ldiffentity{2011a} \ldiffentity{b} \ldiffentity{2012}; \ldiffentity{\textit{Foo et al.} \ldiffentity{2011}}; \ldiffentity{\textit{Bar and Baz} \ldiffentity{2013}})`,
		},
		{
			name:     "protected citet",
			cfg:      protectedConfig(),
			refs:     resolved,
			inv:      parser.Invocation{Command: "citet", Keys: []string{"bar2013"}},
			expected: `\ldiffentity{\textit{Bar and Baz} (\ldiffentity{2013})}`,
		},
		{
			name: "numeric",
			cfg:  numericConfig(),
			refs: mapLookup{keys: resolved.keys, refs: map[string]bib.Reference{
				"foo2010": {}, "foo2011lorem": {}, "foo2011ipsum": {}, "foo2012": {}, "foo2011dolor": {}, "bar2013": {},
			}},
			inv: parser.Invocation{Command: "citep",
				Keys: []string{"foo2010", "foo2011lorem", "foo2011ipsum", "foo2012", "foo2011dolor", "bar2013"}},
			expected: `[1, 2, 3, 4, 5, 6]`,
		},
		{
			name: "numeric follows document order",
			cfg:  numericConfig(),
			refs: mapLookup{keys: resolved.keys, refs: map[string]bib.Reference{"foo2011ipsum": {}, "foo2011dolor": {}}},
			inv: parser.Invocation{Command: "citep", Prenote: "e.g.", Postnote: "and references therein",
				Keys: []string{"foo2011ipsum", "foo2011dolor"}},
			expected: `[e.g. 3, 5, and references therein]`,
		},
		{
			name: "year prefix differs",
			cfg:  plainConfig(),
			refs: mapLookup{keys: []string{"a", "b", "c"}, refs: map[string]bib.Reference{
				"a": {Author: "Foo", Year: "2010"},
				"b": {Author: "Foo", Year: "2011"},
				"c": {Author: "Foo", Year: "in press"},
			}},
			inv:      parser.Invocation{Command: "citep", Keys: []string{"a", "b", "c"}},
			expected: `[\textit{Foo}, 2010, 2011, in press]`,
		},
		{
			name: "short years",
			cfg:  plainConfig(),
			refs: mapLookup{keys: []string{"a", "b"}, refs: map[string]bib.Reference{
				"a": {Author: "Foo", Year: "99"},
				"b": {Author: "Foo", Year: "99"},
			}},
			inv:      parser.Invocation{Command: "citep", Keys: []string{"a", "b"}},
			expected: `[\textit{Foo}, 99, ]`,
		},
		{
			name: "empty author never merges",
			cfg:  plainConfig(),
			refs: mapLookup{keys: []string{"a", "b"}, refs: map[string]bib.Reference{
				"a": {Year: "2010"},
				"b": {Year: "2010"},
			}},
			inv:      parser.Invocation{Command: "citep", Keys: []string{"a", "b"}},
			expected: `[\textit{}, 2010; \textit{}, 2010]`,
		},
		{
			name: "capture groups",
			cfg: func() *config.Config {
				cfg := plainConfig()
				cfg.CmdFormat["citep"] = config.Format{CiteStart: "[", Author: "%CG1%", SepRef: ", ", CiteEnd: "]"}
				return cfg
			}(),
			refs: mapLookup{keys: []string{"a", "b"},
				refs:   map[string]bib.Reference{"a": {}, "b": {}},
				groups: map[string][]string{"a": {"Foo10"}, "b": {"Bar13"}},
			},
			inv:      parser.Invocation{Command: "citep", Keys: []string{"a", "b"}},
			expected: `[Foo10, Bar13]`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer(tt.cfg, zap.NewNop())
			out, err := r.Render(tt.inv, tt.refs)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, out)
		})
	}
}

func TestRenderDropsDisallowedNotes(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	r := NewRenderer(plainConfig(), zap.New(core))

	inv := parser.Invocation{
		Text:     `\citet[see][p. 3]{foo2010}`,
		Command:  "citet",
		Prenote:  "see",
		Postnote: "p. 3",
		Keys:     []string{"foo2010"},
	}
	out, err := r.Render(inv, resolved)
	require.NoError(t, err)
	assert.Equal(t, `\textit{Foo} [2010]`, out)

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Contains(t, entry.Message, `\citet{}`)
	assert.Equal(t, inv.Text, entry.ContextMap()["command"])
}

func TestRenderUnresolvedKey(t *testing.T) {
	r := NewRenderer(plainConfig(), zap.NewNop())

	_, err := r.Render(parser.Invocation{Command: "citep", Keys: []string{"foo2010", "missing"}}, resolved)
	require.Error(t, err)

	var resErr *bib.ResolutionError
	require.True(t, errors.As(err, &resErr))
	assert.Equal(t, "missing", resErr.Key)
}

func TestRenderUnknownCommand(t *testing.T) {
	r := NewRenderer(plainConfig(), zap.NewNop())

	_, err := r.Render(parser.Invocation{Command: "footcite", Keys: []string{"foo2010"}}, resolved)
	assert.Error(t, err)
}

func TestRewrite(t *testing.T) {
	doc := "\\begin{document}\n" +
		"A \\citep{foo2010}. B \\citet{bar2013}. C \\citep{foo2010}.\n" +
		"% \\citep{foo2012}\n" +
		"\\end{document}\n"

	r := NewRenderer(plainConfig(), zap.NewNop())
	out, rendered, err := r.Rewrite(doc, resolved)
	require.NoError(t, err)

	assert.Equal(t, "\\begin{document}\n"+
		"A [\\textit{Foo}, 2010]. B \\textit{Bar and Baz} [2013]. C [\\textit{Foo}, 2010].\n"+
		"% \\citep{foo2012}\n"+
		"\\end{document}\n", out)
	require.Len(t, rendered, 3)
	assert.Equal(t, `\citet{bar2013}`, rendered[1].Invocation.Text)
	assert.Equal(t, `\textit{Bar and Baz} [2013]`, rendered[1].Output)
}

func TestRewriteStopsOnError(t *testing.T) {
	r := NewRenderer(plainConfig(), zap.NewNop())
	_, _, err := r.Rewrite(`\citep{nowhere}`, resolved)
	assert.Error(t, err)
}

func TestSplitYear(t *testing.T) {
	tests := []struct {
		year   string
		prefix string
		rest   string
	}{
		{year: "2011a", prefix: "2011", rest: "a"},
		{year: "2011", prefix: "2011", rest: ""},
		{year: "99", prefix: "99", rest: ""},
		{year: "", prefix: "", rest: ""},
		{year: "in press", prefix: "in p", rest: "ress"},
	}

	for _, tt := range tests {
		t.Run(tt.year, func(t *testing.T) {
			prefix, rest := splitYear(tt.year)
			assert.Equal(t, tt.prefix, prefix)
			assert.Equal(t, tt.rest, rest)
		})
	}
}
