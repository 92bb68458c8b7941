// Package contract validates topic payloads against small declarative
// schemas before a handler ever touches the container driver or the
// persistence store. A schema is a map from field name to a Type; nested
// maps are themselves schemas, so nested-object contracts (vnic_configs
// entries, for example) validate recursively.
package contract

import (
	"fmt"
	"time"
)

// Type validates a single decoded JSON value.
type Type interface {
	Validate(v interface{}) error
}

// Schema is a field-name -> Type (or nested Schema) contract.
type Schema map[string]interface{}

type numberType struct{}

func (numberType) Validate(v interface{}) error {
	switch v.(type) {
	case float64, int, int64:
		return nil
	default:
		return fmt.Errorf("value must be a number")
	}
}

type stringType struct{}

func (stringType) Validate(v interface{}) error {
	if _, ok := v.(string); !ok {
		return fmt.Errorf("value must be a string")
	}
	return nil
}

type boolType struct{}

func (boolType) Validate(v interface{}) error {
	if _, ok := v.(bool); !ok {
		return fmt.Errorf("value must be a boolean")
	}
	return nil
}

type dateType struct{}

func (dateType) Validate(v interface{}) error {
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("value must be a valid ISO datetime string")
	}
	if _, err := time.Parse(time.RFC3339, s); err != nil {
		return fmt.Errorf("value must be a valid ISO datetime string")
	}
	return nil
}

// Number, String, Bool, and Date are the base leaf types.
var (
	Number Type = numberType{}
	String Type = stringType{}
	Bool   Type = boolType{}
	Date   Type = dateType{}
)

// ListType validates that a value is a list whose every element satisfies
// Item. Item may be a Type or, for lists of objects such as vnic_configs,
// a nested Schema.
type ListType struct {
	Item interface{}
}

func List(item interface{}) ListType { return ListType{Item: item} }

func (l ListType) Validate(v interface{}) error {
	items, ok := v.([]interface{})
	if !ok {
		return fmt.Errorf("value must be a list")
	}

	if nested, ok := l.Item.(Schema); ok {
		for i, item := range items {
			m, ok := item.(map[string]interface{})
			if !ok {
				return fmt.Errorf("item %d: must be an object", i)
			}
			if err := Validate(nested, m); err != nil {
				return fmt.Errorf("item %d: %w", i, err)
			}
		}
		return nil
	}

	typ, ok := l.Item.(Type)
	if !ok {
		return fmt.Errorf("unknown list item contract type %T", l.Item)
	}
	for i, item := range items {
		if err := typ.Validate(item); err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
	}
	return nil
}

// OptionalType wraps a Type, skipping validation entirely when the field
// is absent or explicitly nil.
type OptionalType struct {
	Inner Type
}

func Optional(inner Type) OptionalType { return OptionalType{Inner: inner} }

func (o OptionalType) Validate(v interface{}) error {
	if v == nil {
		return nil
	}
	return o.Inner.Validate(v)
}

// BaseMessage is the field set every topic payload carries regardless of
// its own schema: a correlation id echoed back on the reply.
var BaseMessage = Schema{
	"correlation_id": Number,
}

// Merge returns a new schema combining base with extra, with extra's keys
// taking precedence on collision.
func Merge(base Schema, extra Schema) Schema {
	out := make(Schema, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

// Validate checks data against schema. A field declared Optional may be
// missing from data; every other field is required. A nested Schema value
// recurses into data[key], which must itself be a map.
func Validate(schema Schema, data map[string]interface{}) error {
	for key, want := range schema {
		v, present := data[key]

		if nested, ok := want.(Schema); ok {
			if !present {
				return fmt.Errorf("missing key: %s", key)
			}
			sub, ok := v.(map[string]interface{})
			if !ok {
				return fmt.Errorf("field %s: must be an object", key)
			}
			if err := Validate(nested, sub); err != nil {
				return fmt.Errorf("%s.%v", key, err)
			}
			continue
		}

		typ, ok := want.(Type)
		if !ok {
			return fmt.Errorf("field %s: unknown contract type %T", key, want)
		}

		if !present {
			if _, optional := typ.(OptionalType); optional {
				continue
			}
			return fmt.Errorf("missing key: %s", key)
		}

		if err := typ.Validate(v); err != nil {
			return fmt.Errorf("field %s: %w", key, err)
		}
	}
	return nil
}
