package eventsrc

import (
	"errors"
	"fmt"
)

// ErrConcurrency is returned when an append fails because another writer
// already used the sequence ids, indicating a concurrent modification.
type ErrConcurrency struct {
	Msg string
}

func (e ErrConcurrency) Error() string {
	return e.Msg
}

// Kind classifies a FoldError. Every kind is fatal: it points at a corrupt
// event log, a bad snapshot or a producer defect, never at a transient condition.
type Kind int

const (
	KindMissingSnapshot Kind = iota + 1
	KindOutOfOrderEvent
	KindUnknownEventType
	KindDuplicateChildID
	KindChildNotFound
	KindPostTerminalEvent
	KindMalformedSnapshot
	KindSchemaMismatch
	KindMalformedEvent
	KindPartitionMismatch
	KindAggregateExists
	KindTypeMismatch
)

var kindNames = map[Kind]string{
	KindMissingSnapshot:   "MissingSnapshot",
	KindOutOfOrderEvent:   "OutOfOrderEvent",
	KindUnknownEventType:  "UnknownEventType",
	KindDuplicateChildID:  "DuplicateChildId",
	KindChildNotFound:     "ChildNotFound",
	KindPostTerminalEvent: "PostTerminalEvent",
	KindMalformedSnapshot: "MalformedSnapshot",
	KindSchemaMismatch:    "SchemaMismatch",
	KindMalformedEvent:    "MalformedEvent",
	KindPartitionMismatch: "PartitionMismatch",
	KindAggregateExists:   "AggregateExists",
	KindTypeMismatch:      "TypeMismatch",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Sentinels for errors.Is. A *FoldError matches the sentinel of its kind.
var (
	ErrMissingSnapshot   = &FoldError{Kind: KindMissingSnapshot}
	ErrOutOfOrderEvent   = &FoldError{Kind: KindOutOfOrderEvent}
	ErrUnknownEventType  = &FoldError{Kind: KindUnknownEventType}
	ErrDuplicateChildID  = &FoldError{Kind: KindDuplicateChildID}
	ErrChildNotFound     = &FoldError{Kind: KindChildNotFound}
	ErrPostTerminalEvent = &FoldError{Kind: KindPostTerminalEvent}
	ErrMalformedSnapshot = &FoldError{Kind: KindMalformedSnapshot}
	ErrSchemaMismatch    = &FoldError{Kind: KindSchemaMismatch}
	ErrMalformedEvent    = &FoldError{Kind: KindMalformedEvent}
	ErrPartitionMismatch = &FoldError{Kind: KindPartitionMismatch}
	ErrAggregateExists   = &FoldError{Kind: KindAggregateExists}
	ErrTypeMismatch      = &FoldError{Kind: KindTypeMismatch}
)

// FoldError reports why an aggregate could not be reconstructed.
type FoldError struct {
	Kind        Kind
	AggregateID string
	EventType   EventType
	SequenceID  int64
	Msg         string
	Err         error
}

func (e *FoldError) Error() string {
	msg := e.Kind.String()
	if e.AggregateID != "" {
		msg += fmt.Sprintf(" aggregate=%s", e.AggregateID)
	}
	if e.EventType != "" {
		msg += fmt.Sprintf(" event=%s", e.EventType)
	}
	if e.SequenceID != 0 {
		msg += fmt.Sprintf(" seq=%d", e.SequenceID)
	}
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FoldError) Unwrap() error { return e.Err }

// Is matches any FoldError of the same kind, so the sentinels work with errors.Is.
func (e *FoldError) Is(target error) bool {
	t, ok := target.(*FoldError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// NewError builds a FoldError of the given kind.
func NewError(kind Kind, format string, args ...any) *FoldError {
	return &FoldError{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// eventError builds a FoldError that carries the coordinates of the offending event.
func eventError(kind Kind, evt Event, format string, args ...any) *FoldError {
	return &FoldError{
		Kind:        kind,
		AggregateID: evt.AggregateID(),
		EventType:   evt.EventType(),
		SequenceID:  evt.SequenceID(),
		Msg:         fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of the first FoldError in err's chain, or 0.
func KindOf(err error) Kind {
	var fe *FoldError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}

// IsFatal reports whether err is a consistency failure. Retrying such a
// reconstruction with the same inputs fails identically.
func IsFatal(err error) bool {
	return KindOf(err) != 0
}
