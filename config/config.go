// Package config loads the enumerated, process-wide options the
// document package otherwise hard-codes: the signature placeholder
// widths, the scratch directory, the producer string stamped into
// /Info, and the seed used for widget name generation.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/pdfseal/pdfseal/document"
)

// DefaultLocation is where Load looks if the caller doesn't pass a path.
var DefaultLocation = "./pdfseal.conf"

// Config is the root of the TOML config file.
type Config struct {
	SignatureHexCapacity int    `toml:"signature_hex_capacity"`
	ByteRangeCapacity    int    `toml:"byte_range_capacity"`
	TempDir              string `toml:"temp_dir"`
	Producer             string `toml:"producer"`
	WidgetNameSeed       int64  `toml:"widget_name_seed"`
}

// Load reads configfile and merges it over DefaultConfig's values: any
// field the file leaves out keeps its default; a field the file sets,
// even to zero, replaces it.
func Load(configfile string) (Config, error) {
	if configfile == "" {
		configfile = DefaultLocation
	}
	if _, err := os.Stat(configfile); err != nil {
		return Config{}, fmt.Errorf("config: file is missing: %s: %w", configfile, err)
	}

	def := document.DefaultConfig()
	c := Config{
		SignatureHexCapacity: def.SignatureHexCapacity,
		ByteRangeCapacity:    def.ByteRangeCapacity,
		TempDir:              def.TempDir,
		Producer:             def.Producer,
	}

	if _, err := toml.DecodeFile(configfile, &c); err != nil {
		return Config{}, fmt.Errorf("config: failed to decode %s: %w", configfile, err)
	}

	return c, nil
}

// Default returns the documented defaults without touching disk.
func Default() Config {
	def := document.DefaultConfig()
	return Config{
		SignatureHexCapacity: def.SignatureHexCapacity,
		ByteRangeCapacity:    def.ByteRangeCapacity,
		TempDir:              def.TempDir,
		Producer:             def.Producer,
	}
}

// DocumentConfig converts c into the document.Config the signature
// coordinator consumes.
func (c Config) DocumentConfig() document.Config {
	return document.Config{
		SignatureHexCapacity: c.SignatureHexCapacity,
		ByteRangeCapacity:    c.ByteRangeCapacity,
		TempDir:              c.TempDir,
		Producer:             c.Producer,
	}
}
