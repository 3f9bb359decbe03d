// Package config loads docgraph settings from .docgraph.yaml, a .env file
// and DOCGRAPH_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/DeusData/docgraph/internal/libbuild"
	"github.com/DeusData/docgraph/internal/nodebuild"
	"github.com/DeusData/docgraph/internal/store"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = ".docgraph.yaml"

const envPrefix = "DOCGRAPH_"

// Config holds user-overridable settings. Unset fields select defaults
// through the Effective* getters.
type Config struct {
	DBPath    string          `yaml:"db_path"`
	LogLevel  string          `yaml:"log_level" validate:"omitempty,oneof=debug info warn error"`
	NodeBuild NodeBuildConfig `yaml:"node_build"`
	Link      LinkConfig      `yaml:"link"`
	Libraries LibraryConfig   `yaml:"libraries"`
}

// NodeBuildConfig configures node upserts.
type NodeBuildConfig struct {
	// MaxSourceBytes caps stored source text. Default: 10 MiB.
	MaxSourceBytes *int `yaml:"max_source_bytes" validate:"omitempty,gt=0"`
	// CacheSize bounds the node lookup cache. Default: 4096.
	CacheSize *int `yaml:"cache_size" validate:"omitempty,gt=0"`
	// StrictValidation aborts a build on the first invalid declaration.
	// Default: false.
	StrictValidation *bool `yaml:"strict_validation"`
}

// LinkConfig configures the linker.
type LinkConfig struct {
	// Workers bounds parallel node linking. Default: NumCPU.
	Workers *int `yaml:"workers" validate:"omitempty,gt=0,lte=256"`
}

// LibraryConfig configures the library builder.
type LibraryConfig struct {
	Workers         *int     `yaml:"workers" validate:"omitempty,gt=0,lte=256"`
	Include         []string `yaml:"include" validate:"dive,required"`
	Exclude         []string `yaml:"exclude" validate:"dive,required"`
	CompanyPrefixes []string `yaml:"company_prefixes" validate:"dive,required"`
}

var validate = validator.New()

// Load reads the config file at path, or DefaultFile when path is empty.
// A missing default file is not an error; a missing explicit file is.
// Variables from .env are loaded without overriding the process environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config.dotenv", "err", err)
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(envPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}
	num := func(name string, dst **int) error {
		v, ok := lookup(envPrefix + name)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, name, err)
		}
		*dst = &n
		return nil
	}

	str("DB_PATH", &c.DBPath)
	str("LOG_LEVEL", &c.LogLevel)
	list("LIBRARY_INCLUDE", &c.Libraries.Include)
	list("LIBRARY_EXCLUDE", &c.Libraries.Exclude)
	list("COMPANY_PREFIXES", &c.Libraries.CompanyPrefixes)
	if v, ok := lookup(envPrefix + "STRICT_VALIDATION"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sSTRICT_VALIDATION: %w", envPrefix, err)
		}
		c.NodeBuild.StrictValidation = &b
	}
	return errors.Join(
		num("MAX_SOURCE_BYTES", &c.NodeBuild.MaxSourceBytes),
		num("NODE_CACHE_SIZE", &c.NodeBuild.CacheSize),
		num("LINK_WORKERS", &c.Link.Workers),
		num("LIBRARY_WORKERS", &c.Libraries.Workers),
	)
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EffectiveDBPath returns the configured database path or the user cache default.
func (c *Config) EffectiveDBPath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	return store.DefaultPath()
}

// EffectiveLogLevel returns the configured level, or info.
func (c *Config) EffectiveLogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) EffectiveMaxSourceBytes() int {
	if c.NodeBuild.MaxSourceBytes != nil {
		return *c.NodeBuild.MaxSourceBytes
	}
	return nodebuild.DefaultMaxSourceBytes
}

func (c *Config) EffectiveNodeCacheSize() int {
	if c.NodeBuild.CacheSize != nil {
		return *c.NodeBuild.CacheSize
	}
	return 4096
}

func (c *Config) EffectiveStrictValidation() bool {
	return c.NodeBuild.StrictValidation != nil && *c.NodeBuild.StrictValidation
}

func (c *Config) EffectiveLinkWorkers() int {
	if c.Link.Workers != nil {
		return *c.Link.Workers
	}
	return runtime.NumCPU()
}

func (c *Config) EffectiveLibraryWorkers() int {
	if c.Libraries.Workers != nil {
		return *c.Libraries.Workers
	}
	return runtime.NumCPU()
}

// NodeBuildOptions returns the node builder options.
func (c *Config) NodeBuildOptions() nodebuild.Options {
	return nodebuild.Options{MaxSourceBytes: c.EffectiveMaxSourceBytes(), CacheSize: c.EffectiveNodeCacheSize()}
}

// LibraryOptions returns the library builder options.
func (c *Config) LibraryOptions() libbuild.Options {
	return libbuild.Options{
		Workers:         c.EffectiveLibraryWorkers(),
		Include:         c.Libraries.Include,
		Exclude:         c.Libraries.Exclude,
		CompanyPrefixes: c.Libraries.CompanyPrefixes,
	}
}
