// Package config handles rooted.toml project configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/BurntSushi/toml"

	"github.com/chazu/rooted/gc"
	"github.com/chazu/rooted/tracegen"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "rooted.toml"

//go:embed schema.cue
var schemaSource string

// ErrInvalid is wrapped by errors from Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config represents a rooted.toml file.
type Config struct {
	GC        GC        `toml:"gc" json:"gc"`
	Tracegen  Tracegen  `toml:"tracegen" json:"tracegen"`
	Lint      Lint      `toml:"lint" json:"lint"`
	Collector Collector `toml:"collector" json:"collector"`
	Script    Script    `toml:"script" json:"script"`
	Snapshot  Snapshot  `toml:"snapshot" json:"snapshot"`
	Log       Log       `toml:"log" json:"log"`

	// Dir is the directory containing the rooted.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// GC names the collector package.
type GC struct {
	Path string `toml:"path" json:"path"`
}

// Tracegen configures trace generation.
type Tracegen struct {
	Packages []string `toml:"packages" json:"packages"`
	Tags     []string `toml:"tags" json:"tags"`
}

// Lint configures the rooting analyzers.
type Lint struct {
	Transitive bool `toml:"transitive" json:"transitive"`
	Tests      bool `toml:"tests" json:"tests"`
}

// Collector configures the periodic collector.
type Collector struct {
	Enabled     bool   `toml:"enabled" json:"enabled"`
	Interval    string `toml:"interval" json:"interval"`
	VerifyTrace bool   `toml:"verify-trace" json:"verify-trace"`
}

// Script configures the script runtime's handle store. Handles unused for
// HandleTTL are swept every SweepInterval; a zero TTL disables sweeping.
type Script struct {
	HandleTTL     string `toml:"handle-ttl" json:"handle-ttl"`
	SweepInterval string `toml:"sweep-interval" json:"sweep-interval"`
}

// Snapshot configures the heap snapshot archive.
type Snapshot struct {
	DB string `toml:"db" json:"db"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file"`
}

// Default returns the configuration used when no rooted.toml exists.
func Default() *Config {
	return &Config{
		GC: GC{Path: tracegen.DefaultGCPath},
		Tracegen: Tracegen{
			Packages: []string{"."},
			Tags:     []string{},
		},
		Collector: Collector{
			Enabled:  true,
			Interval: gc.DefaultCollectInterval.String(),
		},
		Script: Script{
			HandleTTL:     "10m",
			SweepInterval: "1m",
		},
		Snapshot: Snapshot{DB: filepath.Join(".rooted", "snapshots.db")},
	}
}

// Load parses the rooted.toml file in dir over the defaults and validates
// the result.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes TOML data over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%w: unknown keys %s", ErrInvalid, strings.Join(keys, ", "))
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a rooted.toml file, then loads
// and returns it. If none is found it returns Default with Dir set to
// startDir.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	start := dir

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			c := Default()
			c.Dir = start
			return c, nil
		}
		dir = parent
	}
}

// normalize replaces absent lists with empty ones so they encode as lists.
func (c *Config) normalize() {
	for _, p := range []*[]string{&c.Tracegen.Packages, &c.Tracegen.Tags} {
		if *p == nil {
			*p = []string{}
		}
	}
}

// Validate checks c against the embedded CUE schema.
func (c *Config) Validate() error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	v := def.Unify(ctx.Encode(c))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// CollectInterval returns the parsed collector interval.
func (c *Config) CollectInterval() (time.Duration, error) {
	d, err := time.ParseDuration(c.Collector.Interval)
	if err != nil {
		return 0, fmt.Errorf("collector interval: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: collector interval must be positive", ErrInvalid)
	}
	return d, nil
}

// HandleSweep returns the handle TTL and sweep interval. A zero TTL means
// handles never expire.
func (c *Config) HandleSweep() (ttl, interval time.Duration, err error) {
	ttl, err = time.ParseDuration(c.Script.HandleTTL)
	if err != nil {
		return 0, 0, fmt.Errorf("script handle-ttl: %w", err)
	}
	interval, err = time.ParseDuration(c.Script.SweepInterval)
	if err != nil {
		return 0, 0, fmt.Errorf("script sweep-interval: %w", err)
	}
	if ttl > 0 && interval <= 0 {
		return 0, 0, fmt.Errorf("%w: script sweep-interval must be positive", ErrInvalid)
	}
	return ttl, interval, nil
}

// SnapshotPath returns the snapshot database path, resolved against Dir.
func (c *Config) SnapshotPath() string {
	if filepath.IsAbs(c.Snapshot.DB) || c.Dir == "" {
		return c.Snapshot.DB
	}
	return filepath.Join(c.Dir, c.Snapshot.DB)
}

// LogPath returns the log file path resolved against Dir, or nil for
// stderr.
func (c *Config) LogPath() *string {
	if c.Log.File == "" {
		return nil
	}
	p := c.Log.File
	if !filepath.IsAbs(p) && c.Dir != "" {
		p = filepath.Join(c.Dir, p)
	}
	return &p
}

// HeapOptions returns the gc.Heap options the collector section asks for.
func (c *Config) HeapOptions() []gc.HeapOption {
	var opts []gc.HeapOption
	if c.Collector.VerifyTrace {
		opts = append(opts, gc.WithTraceVerification())
	}
	return opts
}
