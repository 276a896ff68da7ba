// (c) Copyright 2016 Hewlett Packard Enterprise Development LP
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinktracer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
)

// Default request bounds applied by Config.Normalize.
const (
	DefaultDepth      = 15
	DefaultMaxSeconds = 600
)

// Config is a scan request. It arrives from the external caller as JSON
// and is validated before any work starts.
type Config struct {
	ProjectPath string   `json:"projectPath"`
	RulesPath   string   `json:"rulesPath"`
	SinkTypes   []string `json:"sinkTypes,omitempty"`
	Depth       int      `json:"depth"`
	Engine      string   `json:"engine"`
	MaxSeconds  int      `json:"maxSeconds"`
	// TemplateScan and LiteEnrich carry "on"/"off" on the wire.
	TemplateScan        string `json:"templateScan"`
	LiteEnrich          string `json:"liteEnrich"`
	ApplyMustSubstrings bool   `json:"applyMustSubstrings"`
	// Workers bounds the indexing pool; zero means GOMAXPROCS.
	Workers int `json:"workers,omitempty"`
}

// NewConfig returns a request with every default applied.
func NewConfig() Config {
	c := Config{}
	c.Normalize()
	return c
}

// ReadFrom implements io.ReaderFrom so a request can be loaded from a
// file or any other reader.
func (c *Config) ReadFrom(r io.Reader) (int64, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return int64(len(data)), err
	}
	if err = json.Unmarshal(data, c); err != nil {
		return int64(len(data)), err
	}
	c.Normalize()
	return int64(len(data)), nil
}

// WriteTo implements io.WriterTo for saving or printing the request.
func (c *Config) WriteTo(w io.Writer) (int64, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return int64(len(data)), err
	}
	return io.Copy(w, bytes.NewReader(data))
}

// Normalize fills defaulted fields in place.
func (c *Config) Normalize() {
	if c.Depth <= 0 {
		c.Depth = DefaultDepth
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = DefaultMaxSeconds
	}
	if c.Engine == "" {
		c.Engine = "full"
	}
	if c.TemplateScan == "" {
		c.TemplateScan = "on"
	}
	if c.LiteEnrich == "" {
		c.LiteEnrich = "on"
	}
	if c.Workers <= 0 {
		c.Workers = runtime.GOMAXPROCS(0)
	}
}

// Validate rejects a request that cannot start. It is the only failure
// mode surfaced before any scanning work happens; everything later
// degrades to partial output instead.
func (c *Config) Validate() error {
	if c.ProjectPath == "" {
		return &ConfigError{Field: "projectPath", Reason: "is required"}
	}
	info, err := os.Stat(c.ProjectPath)
	if err != nil || !info.IsDir() {
		return &ConfigError{Field: "projectPath", Reason: fmt.Sprintf("%q is not a readable directory", c.ProjectPath)}
	}
	if c.RulesPath == "" {
		return &ConfigError{Field: "rulesPath", Reason: "is required"}
	}
	if info, err = os.Stat(c.RulesPath); err != nil || info.IsDir() {
		return &ConfigError{Field: "rulesPath", Reason: fmt.Sprintf("%q is not a readable file", c.RulesPath)}
	}
	if c.Engine != "full" && c.Engine != "lite" {
		return &ConfigError{Field: "engine", Reason: `must be "full" or "lite"`}
	}
	if err := validToggle(c.TemplateScan); err != nil {
		return &ConfigError{Field: "templateScan", Reason: err.Error()}
	}
	if err := validToggle(c.LiteEnrich); err != nil {
		return &ConfigError{Field: "liteEnrich", Reason: err.Error()}
	}
	return nil
}

func validToggle(v string) error {
	if v != "on" && v != "off" {
		return fmt.Errorf(`must be "on" or "off", got %q`, v)
	}
	return nil
}

// TemplateScanEnabled reports whether the template pipeline runs.
func (c *Config) TemplateScanEnabled() bool { return c.TemplateScan == "on" }

// LiteEnrichEnabled reports whether lite mode still runs enrichment.
func (c *Config) LiteEnrichEnabled() bool { return c.LiteEnrich == "on" }
