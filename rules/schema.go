package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

// ruleSchema describes the structural contract a rule document must meet
// before any pattern compilation happens. Per-entry regex validity is NOT
// checked here; bad regexes surface as BadPattern diagnostics instead.
const ruleSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "properties": {
    "sink_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["sink_name", "sinks"],
        "properties": {
          "sink_name": {"type": "string", "minLength": 1},
          "sink_desc": {"type": "string"},
          "severity_level": {"type": "string"},
          "language_context": {"type": "string"},
          "sinks": {"type": "array", "items": {"type": "string"}},
          "must_substrings": {"type": "array", "items": {"type": "string"}},
          "exclude_substrings": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "source_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["source_name", "sources"],
        "properties": {
          "source_name": {"type": "string", "minLength": 1},
          "desc": {"type": "string"},
          "language_context": {"type": "string"},
          "sources": {"type": "array", "items": {"type": "string"}},
          "must_substrings": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "sanitizer_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["sanitizer_name", "sanitizers"],
        "properties": {
          "sanitizer_name": {"type": "string", "minLength": 1},
          "desc": {"type": "string"},
          "sanitizers": {"type": "array", "items": {"type": "string"}}
        }
      }
    },
    "template_rules": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["name", "patterns"],
        "properties": {
          "name": {"type": "string", "minLength": 1},
          "vul_type": {"type": "string"},
          "desc": {"type": "string"},
          "severity": {"type": "string"},
          "file_exts": {"type": "array", "items": {"type": "string"}},
          "patterns": {"type": "array", "items": {"type": "string"}},
          "must_substrings": {"type": "array", "items": {"type": "string"}},
          "exclude_substrings": {"type": "array", "items": {"type": "string"}},
          "entropy": {"type": "boolean"},
          "force_regex": {"type": "boolean"}
        }
      }
    }
  },
  "additionalProperties": true
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func loadSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(strings.NewReader(ruleSchema))
		if err != nil {
			schemaErr = err
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("rules.schema.json", doc); err != nil {
			schemaErr = err
			return
		}
		compiledSchema, schemaErr = compiler.Compile("rules.schema.json")
	})
	return compiledSchema, schemaErr
}

func validateSchema(data []byte, ext string) error {
	sch, err := loadSchema()
	if err != nil {
		return fmt.Errorf("rules schema: %w", err)
	}

	var instance any
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		var raw any
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return fmt.Errorf("rules document is not valid YAML: %w", err)
		}
		// jsonschema validates json.Number-typed instances, so YAML makes
		// a round trip through the JSON decoder first.
		jsonBytes, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("rules document is not representable as JSON: %w", err)
		}
		instance, err = jsonschema.UnmarshalJSON(bytes.NewReader(jsonBytes))
		if err != nil {
			return fmt.Errorf("rules document is not valid JSON: %w", err)
		}
	default:
		instance, err = jsonschema.UnmarshalJSON(bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("rules document is not valid JSON: %w", err)
		}
	}

	if err := sch.Validate(instance); err != nil {
		return fmt.Errorf("rules document failed schema validation: %w", err)
	}
	return nil
}
