package governor

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// schemaCache compiles tool parameter schemas once and reuses them across
// dispatches. Compilation failures fail closed: a tool with a broken schema
// cannot be invoked.
type schemaCache struct {
	mu       sync.Mutex
	compiled map[string]*jsonschema.Schema
}

func newSchemaCache() *schemaCache {
	return &schemaCache{compiled: make(map[string]*jsonschema.Schema)}
}

func (c *schemaCache) get(name string, raw json.RawMessage) (*jsonschema.Schema, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sch, ok := c.compiled[name]; ok {
		return sch, nil
	}
	sch, err := jsonschema.CompileString(name+".schema.json", string(raw))
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", name, err)
	}
	c.compiled[name] = sch
	return sch, nil
}

// validateArgs checks args against the tool's declared schema. A nil or
// empty schema skips schema validation; the tool's own Validate still runs.
func (c *schemaCache) validateArgs(name string, schema, args json.RawMessage) error {
	if len(schema) == 0 {
		return nil
	}
	sch, err := c.get(name, schema)
	if err != nil {
		return err
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return fmt.Errorf("arguments are not valid JSON: %w", err)
	}
	if err := sch.Validate(v); err != nil {
		return err
	}
	return nil
}
