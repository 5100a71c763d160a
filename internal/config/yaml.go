package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	yaml "go.yaml.in/yaml/v3"
)

// coerceToJSONBytes converts YAML config to JSON bytes so the same strict
// JSON decoder (DisallowUnknownFields) serves both formats.
func coerceToJSONBytes(path string, data []byte) ([]byte, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return data, nil
	}
	var v any
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("yaml unmarshal: %w", err)
	}
	jb, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("yaml->json: %w", err)
	}
	return jb, nil
}

// expandEnv substitutes ${VAR} references so secrets (the bot token) can
// stay out of the config file. Unset variables expand to "", which the
// validator then reports.
func expandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(key string) string {
		return os.Getenv(key)
	}))
}

func decodeStrict(jb []byte) (*Config, error) {
	var cfg Config
	dec := json.NewDecoder(bytes.NewReader(jb))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, err
	}
	// reject trailing tokens (e.g. concatenated JSON)
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("invalid config: trailing data")
		}
		return nil, err
	}
	return &cfg, nil
}

// Load reads, expands, and strictly decodes the config file at path.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	jb, err := coerceToJSONBytes(path, expandEnv(b))
	if err != nil {
		return nil, err
	}
	cfg, err := decodeStrict(jb)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}
