package codec

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/0m3kk/lunafold/eventsrc"
)

// Tagged is implemented by every concrete variant of a polymorphic slot.
type Tagged interface {
	TypeTag() string
}

type envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TypeMap is the closed set of concrete types that may fill one polymorphic slot.
type TypeMap[T Tagged] struct {
	name      string
	factories map[string]func() T
}

// NewTypeMap creates an empty type map. name identifies the slot in error messages.
func NewTypeMap[T Tagged](name string) *TypeMap[T] {
	return &TypeMap[T]{name: name, factories: make(map[string]func() T)}
}

// Register adds a variant. factory must return a pointer so that decoding can fill it.
// Register panics if the tag is already used.
func (m *TypeMap[T]) Register(factory func() T) {
	tag := factory().TypeTag()
	if _, ok := m.factories[tag]; ok {
		panic(fmt.Sprintf("%s type '%s' is already registered", m.name, tag))
	}
	m.factories[tag] = factory
}

// Has reports whether tag is a registered variant.
func (m *TypeMap[T]) Has(tag string) bool {
	_, ok := m.factories[tag]
	return ok
}

// Encode writes v with its type tag. A nil v encodes as JSON null.
func (m *TypeMap[T]) Encode(v T) (json.RawMessage, error) {
	if isNil(v) {
		return json.RawMessage("null"), nil
	}
	tag := v.TypeTag()
	if _, ok := m.factories[tag]; !ok {
		return nil, fmt.Errorf("%s type '%s' is not registered", m.name, tag)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", m.name, err)
	}
	return json.Marshal(envelope{Type: tag, Data: data})
}

// Decode reads a value written by Encode. JSON null decodes to the zero T.
func (m *TypeMap[T]) Decode(raw json.RawMessage) (T, error) {
	var zero T
	if len(raw) == 0 || string(raw) == "null" {
		return zero, nil
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, &eventsrc.FoldError{Kind: eventsrc.KindMalformedSnapshot, Msg: fmt.Sprintf("invalid %s envelope", m.name), Err: err}
	}
	if env.Type == "" {
		return zero, eventsrc.NewError(eventsrc.KindMalformedSnapshot, "%s has no type tag", m.name)
	}
	factory, ok := m.factories[env.Type]
	if !ok {
		return zero, eventsrc.NewError(eventsrc.KindMalformedSnapshot, "unknown %s type '%s'", m.name, env.Type)
	}
	v := factory()
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, v); err != nil {
			return zero, &eventsrc.FoldError{Kind: eventsrc.KindMalformedSnapshot, Msg: fmt.Sprintf("invalid %s data", m.name), Err: err}
		}
	}
	return v, nil
}

func isNil[T Tagged](v T) bool {
	var t Tagged = v
	if t == nil {
		return true
	}
	rv := reflect.ValueOf(t)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}
