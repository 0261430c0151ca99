package capture

import (
	"encoding/json"
	"fmt"

	"github.com/mitchellh/copystructure"
)

// Strategy is one step of the clone chain. A strategy that returns an
// error, panics, or yields a value that cannot be encoded as JSON passes the
// value on to the next strategy.
type Strategy struct {
	Name  string
	Clone func(v any) (any, error)
}

// Structural deep-copies maps, slices, pointers and structs.
var Structural = Strategy{Name: "structural", Clone: copystructure.Copy}

// JSONRoundTrip encodes and decodes the value, keeping only its JSON shape.
var JSONRoundTrip = Strategy{Name: "json", Clone: func(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}}

// Stringify coerces the value to its string form.
var Stringify = Strategy{Name: "string", Clone: func(v any) (any, error) {
	return fmt.Sprint(v), nil
}}

// DefaultChain is the order applied to captured details.
func DefaultChain() []Strategy {
	return []Strategy{Structural, JSONRoundTrip, Stringify}
}

// Clone returns a copy of v produced by the first strategy in chain that
// succeeds. nil stays nil. The result is always JSON-encodable.
func Clone(v any, chain []Strategy) any {
	if v == nil {
		return nil
	}
	for _, s := range chain {
		if out, ok := try(s, v); ok {
			return out
		}
	}
	return fmt.Sprint(v)
}

func try(s Strategy, v any) (out any, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			out, ok = nil, false
		}
	}()
	out, err := s.Clone(v)
	if err != nil {
		return nil, false
	}
	if _, err := json.Marshal(out); err != nil {
		return nil, false
	}
	return out, true
}
