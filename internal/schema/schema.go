// Package schema contains the pluggable input/output validation contract
// used by constructs.
//
// A Schema validates a raw value and either returns the parsed value or a
// list of issues the caller can act on. The runtime never assumes a
// concrete validation library; the Struct implementation in this package
// uses the `validator` library to enforce rules (like required fields or
// email formats) defined in struct tags.
package schema

import (
	"encoding/json"

	"github.com/constructhq/construct/internal/errs"
)

// Schema validates a raw value against a declared shape.
//
// Validate returns exactly one of:
//   - the parsed/typed value and a nil issue list, or
//   - a nil value and a non-empty issue list.
type Schema interface {
	Validate(value any) (any, []errs.Issue)
}

// Func adapts a plain function into a Schema. Useful for custom validation
// logic that cannot be expressed via struct tags.
type Func func(value any) (any, []errs.Issue)

func (f Func) Validate(value any) (any, []errs.Issue) {
	return f(value)
}

// decodeInto normalizes a raw input value into the target struct pointer.
//
// Accepted inputs:
//   - []byte / json.RawMessage: decoded directly as JSON
//   - nil: leaves the target at its zero value
//   - anything else: round-tripped through JSON (maps, already-typed values)
func decodeInto(value any, target any) *errs.Issue {
	switch v := value.(type) {
	case nil:
		return nil
	case json.RawMessage:
		return decodeBytes(v, target)
	case []byte:
		return decodeBytes(v, target)
	default:
		raw, err := json.Marshal(v)
		if err != nil {
			return &errs.Issue{Path: "", Message: "value is not representable as JSON"}
		}
		return decodeBytes(raw, target)
	}
}

func decodeBytes(raw []byte, target any) *errs.Issue {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return &errs.Issue{Path: "", Message: "malformed input: " + err.Error()}
	}
	return nil
}
