// Package codec is the wire form of aggregates and of the polymorphic values
// they contain.
//
// Every slot whose declared type is an interface is written as an envelope
// {"type": "<tag>", "data": {...}} so that it decodes back into the same
// concrete type. Whole aggregates are wrapped in a document that names their
// aggregate kind.
package codec

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/0m3kk/lunafold/eventsrc"
)

// SchemaVersion is written into every document.
const SchemaVersion = 1

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// Report json field names instead of Go field names.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Document is the serialized form of an aggregate.
type Document struct {
	Kind          eventsrc.AggregateKind `json:"kind"`
	SchemaVersion int                    `json:"schema_version"`
	Data          json.RawMessage        `json:"data"`
}

// Serialize wraps v in a document of the given aggregate kind.
func Serialize(kind eventsrc.AggregateKind, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", kind, err)
	}
	return json.Marshal(Document{Kind: kind, SchemaVersion: SchemaVersion, Data: data})
}

// Deserialize decodes a document of the expected kind into target, which must be a pointer.
func Deserialize(data []byte, expected eventsrc.AggregateKind, target any) error {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return &eventsrc.FoldError{Kind: eventsrc.KindMalformedSnapshot, Msg: "invalid document", Err: err}
	}
	if doc.Kind == "" {
		return eventsrc.NewError(eventsrc.KindMalformedSnapshot, "document has no kind")
	}
	if doc.Kind != expected {
		return eventsrc.NewError(eventsrc.KindMalformedSnapshot, "document kind %q, expected %q", doc.Kind, expected)
	}
	if len(doc.Data) == 0 || string(doc.Data) == "null" {
		return eventsrc.NewError(eventsrc.KindSchemaMismatch, "document has no data")
	}
	if err := json.Unmarshal(doc.Data, target); err != nil {
		var fe *eventsrc.FoldError
		if errors.As(err, &fe) {
			return fe
		}
		return &eventsrc.FoldError{Kind: eventsrc.KindMalformedSnapshot, Msg: fmt.Sprintf("invalid %s data", expected), Err: err}
	}
	return Validate(target)
}

// Validate checks the required fields of a decoded value.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Namespace())
			}
			return eventsrc.NewError(eventsrc.KindSchemaMismatch, "missing or invalid fields: %s", strings.Join(fields, ", "))
		}
		return &eventsrc.FoldError{Kind: eventsrc.KindSchemaMismatch, Err: err}
	}
	return nil
}

// Codec binds Serialize and Deserialize to one aggregate type.
// It satisfies eventsrc.Codec.
type Codec[S any] struct {
	kind eventsrc.AggregateKind
}

// New returns a codec for aggregates of the given kind.
func New[S any](kind eventsrc.AggregateKind) Codec[S] {
	return Codec[S]{kind: kind}
}

func (c Codec[S]) Marshal(state *S) ([]byte, error) {
	return Serialize(c.kind, state)
}

func (c Codec[S]) Unmarshal(data []byte) (*S, error) {
	state := new(S)
	if err := Deserialize(data, c.kind, state); err != nil {
		return nil, err
	}
	return state, nil
}
