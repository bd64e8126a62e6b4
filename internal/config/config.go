package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// HomeConfigName is the per-user config file looked up in the home directory
const HomeConfigName = ".latexdiffcite.json"

// Format holds the render template for one citation command
type Format struct {
	CiteStart         string `json:"cite_start"`
	SepPrenote        string `json:"sep_prenote"`
	Author            string `json:"author"`
	SepAuthorYear     string `json:"sep_author_year"`
	Year              string `json:"year"`
	SepSameAuthorYear string `json:"sep_same_author_year"`
	SepRef            string `json:"sep_ref"`
	SepPostnote       string `json:"sep_postnote"`
	CiteEnd           string `json:"cite_end"`
	AllowNotes        bool   `json:"allow_notes"`
}

// Bib holds the author list options used when resolving from .bib entries
type Bib struct {
	MaxAuthors        int    `mapstructure:"max_authors"`
	SepAuthorsFirst   string `mapstructure:"sep_authors_first"`
	AuthorSerialComma bool   `mapstructure:"author_serialcomma"`
	SepAuthorsLast    string `mapstructure:"sep_authors_last"`
	EtAl              string `mapstructure:"et_al"`
}

// Bbl holds the capture regex and templates used when resolving from a .bbl snapshot
type Bbl struct {
	Regex  string `mapstructure:"regex"`
	Author string `mapstructure:"author"`
	Year   string `mapstructure:"year"`
}

// Config holds the application configuration. It is not modified after Load returns.
type Config struct {
	Encoding            string            `mapstructure:"encoding"`
	LatexdiffArgs       string            `mapstructure:"latexdiff_args"`
	GitForceUnixPathsep bool              `mapstructure:"git_force_unix_pathsep"`
	RefSingleWord       bool              `mapstructure:"ref_single_word"`
	Bib                 Bib               `mapstructure:"bib"`
	Bbl                 Bbl               `mapstructure:"bbl"`
	CmdFormat           map[string]Format `mapstructure:"-"`
}

// DefaultBblRegex matches natbib-style \bibitem[Author(Year)...]{key} entries
const DefaultBblRegex = `\\bibitem\[{((?:(?!^$).)*?)\(((?:(?!^$).)*?)(?:{\\natexlab{(.?)}})?\)((?:(?!^$).)*?)}\]{%REFKEY%}`

func setDefaults(v *viper.Viper) {
	v.SetDefault("encoding", "utf-8")
	v.SetDefault("latexdiff_args", "")
	v.SetDefault("git_force_unix_pathsep", true)
	v.SetDefault("ref_single_word", true)
	v.SetDefault("bib.max_authors", 2)
	v.SetDefault("bib.sep_authors_first", ", ")
	v.SetDefault("bib.author_serialcomma", true)
	v.SetDefault("bib.sep_authors_last", " and ")
	v.SetDefault("bib.et_al", " et~al.")
	v.SetDefault("bbl.regex", DefaultBblRegex)
	v.SetDefault("bbl.author", "%CG1%")
	v.SetDefault("bbl.year", "%CG2%%CG3%")
}

// DefaultFormats returns the built-in citep/citet/cite templates
func DefaultFormats() map[string]Format {
	return map[string]Format{
		"citep": {
			CiteStart:         "[",
			SepPrenote:        " ",
			Author:            `\textit{%AUTHOR%}`,
			SepAuthorYear:     ", ",
			Year:              "%YEAR%",
			SepSameAuthorYear: ", ",
			SepRef:            "; ",
			SepPostnote:       ", ",
			CiteEnd:           "]",
			AllowNotes:        true,
		},
		"citet": {
			SepPrenote:        " ",
			Author:            `\textit{%AUTHOR%}`,
			SepAuthorYear:     " ",
			Year:              "[%YEAR%]",
			SepSameAuthorYear: ", ",
			SepRef:            "; ",
			SepPostnote:       ", ",
			AllowNotes:        false,
		},
		"cite": {
			SepPrenote:        " ",
			Author:            `\textit{%AUTHOR%}`,
			SepAuthorYear:     " ",
			Year:              "[%YEAR%]",
			SepSameAuthorYear: ", ",
			SepRef:            "; ",
			SepPostnote:       ", ",
			AllowNotes:        true,
		},
	}
}

// Default returns the configuration used when no config file is present
func Default() *Config {
	cfg, err := load(afero.NewMemMapFs(), nil, false)
	if err != nil {
		// defaults alone never fail to unmarshal
		panic(err)
	}
	return cfg
}

// HomeConfigPath returns ~/.latexdiffcite.json, or "" if the home directory is unknown
func HomeConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, HomeConfigName)
}

// Load builds the configuration from defaults, the home config file (if it
// exists), the explicit config file (if non-empty) and LATEXDIFFCITE_*
// environment variables, in that order of precedence.
func Load(fs afero.Fs, explicit string) (*Config, error) {
	var layers []string
	if home := HomeConfigPath(); home != "" {
		if ok, _ := afero.Exists(fs, home); ok {
			layers = append(layers, home)
		}
	}
	if explicit != "" {
		layers = append(layers, explicit)
	}
	return LoadLayers(fs, layers...)
}

// LoadLayers merges the given JSON files over the defaults. Later files win.
func LoadLayers(fs afero.Fs, paths ...string) (*Config, error) {
	return load(fs, paths, true)
}

func load(fs afero.Fs, paths []string, env bool) (*Config, error) {
	v := viper.New()
	v.SetConfigType("json")
	setDefaults(v)

	if env {
		v.SetEnvPrefix("LATEXDIFFCITE")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()
	}

	formats := DefaultFormats()
	for _, path := range paths {
		data, err := afero.ReadFile(fs, path)
		if err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
		if err := v.MergeConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		// viper folds key case, so command names are decoded separately
		layer, err := decodeFormats(data)
		if err != nil {
			return nil, fmt.Errorf("parsing cmd_format in %s: %w", path, err)
		}
		if layer != nil {
			formats = layer
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.CmdFormat = formats
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// rawFormat distinguishes an absent allow_notes from an explicit false
type rawFormat struct {
	Format
	AllowNotes *bool `json:"allow_notes"`
}

func decodeFormats(data []byte) (map[string]Format, error) {
	var doc struct {
		CmdFormat map[string]rawFormat `json:"cmd_format"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if doc.CmdFormat == nil {
		return nil, nil
	}
	formats := make(map[string]Format, len(doc.CmdFormat))
	for name, raw := range doc.CmdFormat {
		f := raw.Format
		if raw.AllowNotes != nil {
			f.AllowNotes = *raw.AllowNotes
		} else {
			f.AllowNotes = name != "citet"
		}
		formats[name] = f
	}
	return formats, nil
}

// Validate checks the invariants the resolver and renderer rely on
func (c *Config) Validate() error {
	if !strings.Contains(c.Bbl.Regex, "%REFKEY%") {
		return fmt.Errorf("bbl regex must contain %%REFKEY%%: %q", c.Bbl.Regex)
	}
	for name := range c.CmdFormat {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("cmd_format contains an empty command name")
		}
	}
	return nil
}

// Commands returns the recognized citation command names, longest first
func (c *Config) Commands() []string {
	names := make([]string, 0, len(c.CmdFormat))
	for name := range c.CmdFormat {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})
	return names
}

// UsesAuthorYear reports whether any template needs resolved author or year text
func (c *Config) UsesAuthorYear() bool {
	for _, f := range c.CmdFormat {
		if strings.Contains(f.Author, "%AUTHOR%") || strings.Contains(f.Year, "%YEAR%") {
			return true
		}
	}
	return false
}

// LatexdiffArgList splits latexdiff_args into separate arguments
func (c *Config) LatexdiffArgList() []string {
	return strings.Fields(c.LatexdiffArgs)
}
