package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/svnarchive/loader/eol"
	yaml "gopkg.in/yaml.v2"
)

// DefaultConcurrency is the value Config.Concurrency takes when the
// config doesn't specify one. The setting is parsed and defaulted
// here only; no worker pool reads it (revision.Submit sizes its pool
// from runtime.NumCPU()).
const DefaultConcurrency = 4

// DefaultArchiveBatchSize is the value Config.ArchiveBatchSize takes
// when the config doesn't specify one. The setting is parsed and
// defaulted here only; revision.Submit does not split submissions by
// it and sends all of one revision's missing objects of a kind in a
// single call.
const DefaultArchiveBatchSize = 1000

// EOLOverride forces an EOL style for paths matching a pattern,
// regardless of what (if anything) svn:eol-style says. Reuses the
// teacher's typemap regex-validation shape (keyword + pattern) for an
// unrelated purpose: SVN has no per-path "typemap" concept, but
// operators loading repositories with inconsistent property hygiene
// need the same kind of override escape hatch.
type EOLOverride struct {
	Style  eol.Style
	RePath *regexp.Regexp
}

// Config controls one load of an SVN repository into the archive.
type Config struct {
	SVNURL           string   `yaml:"svn_url"`
	WorkingDir       string   `yaml:"working_dir"`
	StartFromScratch bool     `yaml:"start_from_scratch"`
	ArchiveBatchSize int      `yaml:"archive_batch_size"`
	Concurrency      int      `yaml:"concurrency"`
	GraphFile        string   `yaml:"graph_file"`
	EOLOverrideSpecs []string `yaml:"eol_overrides"`
	EOLOverrides     []EOLOverride
}

// Unmarshal parses a YAML document into a Config, applying defaults
// and validating derived fields.
func Unmarshal(content []byte) (*Config, error) {
	cfg := &Config{
		ArchiveBatchSize: DefaultArchiveBatchSize,
		Concurrency:      DefaultConcurrency,
		EOLOverrides:     make([]EOLOverride, 0),
	}
	if err := yaml.Unmarshal(content, cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %v. make sure to use 'single quotes' around strings with special characters (like match patterns)", err.Error())
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFile loads and parses a YAML config file.
func LoadConfigFile(filename string) (*Config, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	cfg, err := LoadConfigString(content)
	if err != nil {
		return nil, fmt.Errorf("failed to load %v: %v", filename, err.Error())
	}
	return cfg, nil
}

// LoadConfigString parses a YAML config document.
func LoadConfigString(content []byte) (*Config, error) {
	return Unmarshal(content)
}

func (c *Config) validate() error {
	if c.ArchiveBatchSize <= 0 {
		c.ArchiveBatchSize = DefaultArchiveBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	for _, m := range c.EOLOverrideSpecs {
		parts := strings.Fields(m)
		if len(parts) != 2 {
			return fmt.Errorf("failed to split '%s' on a space", m)
		}
		styleWord, reStr := parts[0], parts[1]
		var style eol.Style
		switch styleWord {
		case "binary":
			style = eol.StyleBinary
		case "native":
			style = eol.StyleNative
		case "LF":
			style = eol.StyleLF
		case "CRLF":
			style = eol.StyleCRLF
		case "CR":
			style = eol.StyleCR
		default:
			return fmt.Errorf("eol_overrides entry must start with one of binary/native/LF/CRLF/CR: %s", m)
		}
		reStr = strings.ReplaceAll(reStr, "...", ".*")
		reStr += "$"
		rePath, err := regexp.Compile(reStr)
		if err != nil {
			return fmt.Errorf("failed to parse '%s' as a regex", reStr)
		}
		c.EOLOverrides = append(c.EOLOverrides, EOLOverride{Style: style, RePath: rePath})
	}
	return nil
}

// ResolveEOLOverride returns the forced style for path, if any override
// matches, and whether a match was found.
func (c *Config) ResolveEOLOverride(path string) (eol.Style, bool) {
	for _, o := range c.EOLOverrides {
		if o.RePath.MatchString(path) {
			return o.Style, true
		}
	}
	return 0, false
}
