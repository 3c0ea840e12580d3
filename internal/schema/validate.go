// Package schema provides JSON schema validation for external plugin
// protocol payloads.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	schemafs "github.com/tobyg/cargox/schema"
)

var (
	pluginTargetsSchema *jsonschema.Schema
	commandSpecSchema   *jsonschema.Schema
	compileOnce         sync.Once
	compileErr          error
)

// compileSchemas compiles all embedded schemas once.
func compileSchemas() error {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()

		for _, name := range []string{"plugin-targets.schema.json", "command-spec.schema.json"} {
			data, err := schemafs.FS.ReadFile(name)
			if err != nil {
				compileErr = fmt.Errorf("read %s: %w", name, err)
				return
			}
			doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
			if err != nil {
				compileErr = fmt.Errorf("unmarshal %s: %w", name, err)
				return
			}
			if err := compiler.AddResource(name, doc); err != nil {
				compileErr = fmt.Errorf("add %s resource: %w", name, err)
				return
			}
		}

		var err error
		pluginTargetsSchema, err = compiler.Compile("plugin-targets.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile plugin-targets schema: %w", err)
			return
		}
		commandSpecSchema, err = compiler.Compile("command-spec.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("compile command-spec schema: %w", err)
			return
		}
	})

	return compileErr
}

// ValidatePluginTargets validates a plugin's collect-targets response.
func ValidatePluginTargets(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := pluginTargetsSchema.Validate(v); err != nil {
		return fmt.Errorf("plugin targets validation failed: %w", err)
	}

	return nil
}

// ValidateCommandSpec validates a plugin's build-command response.
func ValidateCommandSpec(data []byte) error {
	if err := compileSchemas(); err != nil {
		return err
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}

	if err := commandSpecSchema.Validate(v); err != nil {
		return fmt.Errorf("command spec validation failed: %w", err)
	}

	return nil
}
