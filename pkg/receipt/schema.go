package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// wireSchema is the JSON Schema for the receipt wire format. Inbound
// documents are checked against it before unmarshaling so malformed
// input is distinguishable from a receipt that fails validation.
const wireSchema = `{
  "$schema": "https://json-schema.org/draft/2020-12/schema",
  "type": "object",
  "required": ["version", "receipt_id", "timestamp", "agent_id", "action",
               "target_resource", "declared_objective", "risk_context",
               "expiration_time"],
  "properties": {
    "version": {"type": "string"},
    "receipt_id": {"type": "string", "minLength": 1},
    "timestamp": {"type": "string", "format": "date-time"},
    "agent_id": {"type": "string", "minLength": 1},
    "action": {"type": "string", "minLength": 1},
    "target_resource": {"type": "string", "minLength": 1},
    "declared_objective": {"type": "string", "minLength": 1},
    "risk_context": {"enum": ["low", "medium", "high"]},
    "expiration_time": {"type": "string", "format": "date-time"},
    "additional_context": {
      "type": "object",
      "additionalProperties": {"type": ["string", "number", "boolean"]}
    },
    "parent_receipt_signature": {"type": "string"},
    "signature_algorithm": {"enum": ["rsa", "ecdsa"]},
    "signature": {"type": "string"},
    "certificate_chain": {"type": "string"},
    "audit_trail": {"type": "array"},
    "compliance_tags": {"type": "array", "items": {"type": "string"}}
  },
  "additionalProperties": false
}`

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaErr      error
)

func compiledWireSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		const url = "https://poi.schemas.local/receipt.schema.json"
		if err := c.AddResource(url, strings.NewReader(wireSchema)); err != nil {
			schemaErr = fmt.Errorf("receipt schema load failed: %w", err)
			return
		}
		compiledSchema, schemaErr = c.Compile(url)
	})
	return compiledSchema, schemaErr
}

// ValidateWire checks a JSON document against the receipt wire schema.
func ValidateWire(data []byte) error {
	schema, err := compiledWireSchema()
	if err != nil {
		return err
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("receipt is not valid JSON: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("receipt does not match wire schema: %w", err)
	}
	return nil
}

// ParseWire validates a JSON document against the wire schema and
// unmarshals it into a Receipt.
func ParseWire(data []byte) (*Receipt, error) {
	if err := ValidateWire(data); err != nil {
		return nil, err
	}
	var r Receipt
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("receipt unmarshal failed: %w", err)
	}
	return &r, nil
}
