package config

import (
	"encoding/json"
	"os"

	"github.com/casemr/gadgetron/errors"
)

// Loader reads configuration files.
type Loader struct{}

// NewLoader creates a configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

// LoadFile loads a JSON configuration file. Unknown fields are rejected so
// typos fail loudly instead of silently configuring nothing.
func (l *Loader) LoadFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapConfig(err, "Loader", "LoadFile", "open config file")
	}
	defer f.Close() //nolint:errcheck // read-only file

	cfg := Default()
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, errors.WrapConfig(err, "Loader", "LoadFile", "decode config")
	}
	return cfg, nil
}
