package jsonutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"
)

// CompileSchema compiles an inline JSON Schema document registered under name.
func CompileSchema(name, schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile(name)
}

// MustCompileSchema is CompileSchema for package level schemas.
func MustCompileSchema(name, schema string) *jsonschema.Schema {
	s, err := CompileSchema(name, schema)
	if err != nil {
		panic(fmt.Sprintf("compile schema %s: %v", name, err))
	}
	return s
}

// ValidateDocument checks raw JSON syntax with gjson, then validates it
// against schema.
func ValidateDocument(schema *jsonschema.Schema, raw []byte) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("json document is empty")
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("json document is malformed")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("decode json document: %w", err)
	}
	if schema == nil {
		return nil
	}
	return schema.Validate(doc)
}
