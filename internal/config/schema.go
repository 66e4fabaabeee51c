package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchema describes JSON config files. TOML and YAML files are checked
// by ValidateConfig only.
const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "version": {"type": "integer", "minimum": 1},
    "data_dir": {"type": "string"},
    "preferences": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "backend": {"enum": ["sqlite", "file", "memory"]},
        "path": {"type": "string"},
        "busy_timeout_ms": {"type": "integer", "minimum": 0}
      }
    },
    "bootstrap": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "commit_failure": {"enum": ["log", "fail"]},
        "crash_dir": {"type": "string"}
      }
    },
    "logging": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "level": {"type": "string"},
        "format": {"enum": ["text", "json"]},
        "output": {"enum": ["stdout", "stderr", "file", "both"]},
        "file_path": {"type": "string"},
        "max_size_mb": {"type": "integer", "minimum": 0},
        "max_backups": {"type": "integer", "minimum": 0},
        "max_age_days": {"type": "integer", "minimum": 0},
        "compress": {"type": "boolean"}
      }
    }
  }
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiledSchema, schemaErr = jsonschema.CompileString("config.schema.json", configSchema)
	})
	return compiledSchema, schemaErr
}

// ValidateJSONSchema checks a JSON config document against the config schema.
func ValidateJSONSchema(data []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode JSON: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("config schema: %w", err)
	}
	return nil
}
