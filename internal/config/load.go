package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Maximum size of a configuration file
const maxFileSize = 1 << 20

// Load reads a YAML configuration from r. Parameters that are not present
// keep their default value. Unknown keys are an error, so that typos do
// not silently fall back to defaults. The result is validated.
func Load(r io.Reader) (*Config, error) {
	c := Defaults()
	d := yaml.NewDecoder(r)
	d.KnownFields(true)
	if err := d.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadFile reads a YAML configuration file
func LoadFile(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%w: file %s too large: %d bytes (max %d)",
			ErrConfiguration, cleanPath, info.Size(), maxFileSize)
	}
	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cleanPath, err)
	}
	return c, nil
}

// Write writes c as YAML, in a form that Load accepts
func (c *Config) Write(w io.Writer) error {
	e := yaml.NewEncoder(w)
	e.SetIndent(2)
	if err := e.Encode(c); err != nil {
		return err
	}
	return e.Close()
}
