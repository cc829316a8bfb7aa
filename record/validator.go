package record

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pageshot-ai/pageshot/models"
)

// Validator normalizes parsed inference output into Records. It never
// fails: fields not declared in the schema are dropped, missing fields
// get null (empty list for list fields), and scalar values are coerced
// best-effort. Validation is idempotent. Safe for concurrent use.
type Validator struct {
	mu      sync.RWMutex
	schemas map[string]Schema
}

// NewValidator creates a Validator seeded with the built-in schemas.
func NewValidator() *Validator {
	v := &Validator{schemas: make(map[string]Schema, len(builtinSchemas))}
	for _, s := range builtinSchemas {
		v.schemas[s.Kind] = s
	}
	return v
}

// Register adds or replaces the schema for a kind.
func (v *Validator) Register(s Schema) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.schemas[s.Kind] = s
}

// SchemaFor returns the schema for a kind.
func (v *Validator) SchemaFor(kind string) (Schema, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	s, ok := v.schemas[kind]
	return s, ok
}

// Validate normalizes raw parsed output against the schema for kind.
// When no schema is registered for the kind the raw fields pass through
// unchanged; the instruction template alone defines the shape then.
func (v *Validator) Validate(raw map[string]any, kind string) models.Record {
	schema, ok := v.SchemaFor(kind)
	if !ok {
		out := make(models.Record, len(raw))
		for k, val := range raw {
			out[k] = val
		}
		return out
	}

	out := make(models.Record, len(schema.Fields))
	for _, field := range schema.Fields {
		val, present := raw[field.Name]
		if !present || val == nil {
			if field.Type == StringList {
				out[field.Name] = []string{}
			} else {
				out[field.Name] = nil
			}
			continue
		}
		out[field.Name] = coerce(val, field.Type)
	}
	return out
}

// coerce converts a single value to the field's declared type.
// Uncoercible values become nil (scalar) or are skipped (list elements).
func coerce(val any, t FieldType) any {
	switch t {
	case Number:
		return coerceNumber(val)
	case Bool:
		return coerceBool(val)
	case StringList:
		return coerceStringList(val)
	default:
		return coerceString(val)
	}
}

func coerceNumber(val any) any {
	switch n := val.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		if f, ok := parseLooseNumber(n); ok {
			return f
		}
		return nil
	default:
		return nil
	}
}

// parseLooseNumber parses numeric-looking strings the model tends to emit:
// "4.5", "1,234", "$12.99", "3.8 out of 5".
func parseLooseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	cleaned := strings.Map(func(r rune) rune {
		switch {
		case r >= '0' && r <= '9', r == '.', r == '-', r == '+':
			return r
		case r == ',':
			return -1 // thousands separator
		default:
			return ' '
		}
	}, s)
	for _, tok := range strings.Fields(cleaned) {
		if f, err := strconv.ParseFloat(tok, 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func coerceBool(val any) any {
	switch b := val.(type) {
	case bool:
		return b
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "true", "yes":
			return true
		case "false", "no":
			return false
		}
		return nil
	default:
		return nil
	}
}

func coerceString(val any) any {
	switch s := val.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	default:
		return nil
	}
}

func coerceStringList(val any) []string {
	switch list := val.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			switch s := item.(type) {
			case string:
				out = append(out, s)
			case float64:
				out = append(out, strconv.FormatFloat(s, 'f', -1, 64))
			case bool:
				out = append(out, strconv.FormatBool(s))
			case nil:
				// skip
			default:
				out = append(out, fmt.Sprint(s))
			}
		}
		return out
	case string:
		return []string{list}
	default:
		return []string{}
	}
}
