package eventsrc_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0m3kk/lunafold/eventsrc"
)

func TestFolder_Fold(t *testing.T) {
	folder := newChecklistFolder()

	got, err := folder.Fold(nil, []eventsrc.Event{
		&opened{BaseEvent: ev(1, ""), Title: "groceries"},
		&itemAdded{BaseEvent: ev(2, "milk")},
		&itemAdded{BaseEvent: ev(3, "eggs"), Note: note("a dozen")},
		&itemNoted{BaseEvent: ev(4, "milk"), Note: note("oat")},
		&itemNoted{BaseEvent: ev(5, "eggs")},
		&itemRemoved{BaseEvent: ev(6, "milk")},
	})

	require.NoError(t, err)
	assert.Equal(t, &checklist{
		ID:     "list-1",
		Title:  "groceries",
		Status: "open",
		Items:  []item{{Name: "eggs", Note: note("a dozen")}},
	}, got)
}

func TestFolder_EmptyInput(t *testing.T) {
	folder := newChecklistFolder()

	got, err := folder.Fold(nil, nil)
	assert.NoError(t, err)
	assert.Nil(t, got)

	snap := &eventsrc.Snapshot[checklist]{
		AggregateID: "list-1",
		State:       &checklist{ID: "list-1", Status: "open", Items: []item{}},
		SequenceID:  7,
	}
	got, err = folder.Fold(snap, nil)
	require.NoError(t, err)
	assert.Equal(t, snap.State, got)
	assert.NotSame(t, snap.State, got, "fold must work on a copy")
}

func TestFolder_DoesNotModifySnapshot(t *testing.T) {
	folder := newChecklistFolder()
	snap := &eventsrc.Snapshot[checklist]{
		AggregateID: "list-1",
		State:       &checklist{ID: "list-1", Status: "open", Items: []item{{Name: "milk"}}},
		SequenceID:  2,
	}

	got, err := folder.Fold(snap, []eventsrc.Event{
		&itemNoted{BaseEvent: ev(3, "milk"), Note: note("oat")},
		&itemAdded{BaseEvent: ev(4, "bread")},
	})

	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assert.Equal(t, []item{{Name: "milk"}}, snap.State.Items)
}

func TestFolder_Violations(t *testing.T) {
	open := &opened{BaseEvent: ev(1, "")}
	snap := func(seq int64) *eventsrc.Snapshot[checklist] {
		return &eventsrc.Snapshot[checklist]{
			AggregateID: "list-1",
			State:       &checklist{ID: "list-1", Status: "open", Items: []item{{Name: "milk"}}},
			SequenceID:  seq,
		}
	}

	tests := []struct {
		name     string
		snapshot *eventsrc.Snapshot[checklist]
		events   []eventsrc.Event
		kind     eventsrc.Kind
		seq      int64
	}{
		{
			name:   "no creation event",
			events: []eventsrc.Event{&itemAdded{BaseEvent: ev(1, "milk")}},
			kind:   eventsrc.KindMissingSnapshot,
			seq:    1,
		},
		{
			name:   "descending sequence",
			events: []eventsrc.Event{open, &itemAdded{BaseEvent: ev(3, "a")}, &itemAdded{BaseEvent: ev(2, "b")}},
			kind:   eventsrc.KindOutOfOrderEvent,
			seq:    2,
		},
		{
			name:     "event at snapshot sequence",
			snapshot: snap(5),
			events:   []eventsrc.Event{&itemAdded{BaseEvent: ev(5, "bread")}},
			kind:     eventsrc.KindOutOfOrderEvent,
			seq:      5,
		},
		{
			name:   "unknown type",
			events: []eventsrc.Event{open, &stray{BaseEvent: ev(2, "")}},
			kind:   eventsrc.KindUnknownEventType,
			seq:    2,
		},
		{
			name:     "duplicate child",
			snapshot: snap(1),
			events:   []eventsrc.Event{&itemAdded{BaseEvent: ev(2, "milk")}},
			kind:     eventsrc.KindDuplicateChildID,
			seq:      2,
		},
		{
			name:     "missing child",
			snapshot: snap(1),
			events:   []eventsrc.Event{&itemNoted{BaseEvent: ev(2, "bread"), Note: note("rye")}},
			kind:     eventsrc.KindChildNotFound,
			seq:      2,
		},
		{
			name:   "after terminal",
			events: []eventsrc.Event{open, &archived{BaseEvent: ev(2, "")}, &itemAdded{BaseEvent: ev(3, "x")}},
			kind:   eventsrc.KindPostTerminalEvent,
			seq:    3,
		},
		{
			name:   "creation after terminal",
			events: []eventsrc.Event{open, &archived{BaseEvent: ev(2, "")}, &opened{BaseEvent: ev(3, "")}},
			kind:   eventsrc.KindPostTerminalEvent,
			seq:    3,
		},
		{
			name:     "creation over snapshot",
			snapshot: snap(1),
			events:   []eventsrc.Event{&opened{BaseEvent: ev(2, "")}},
			kind:     eventsrc.KindAggregateExists,
			seq:      2,
		},
		{
			name: "other partition",
			events: []eventsrc.Event{open, &itemAdded{
				BaseEvent: eventsrc.BaseEvent{AggID: "list-2", Name: "x", Seq: 2},
			}},
			kind: eventsrc.KindPartitionMismatch,
			seq:  2,
		},
		{
			name:     "snapshot without state",
			snapshot: &eventsrc.Snapshot[checklist]{AggregateID: "list-1", SequenceID: 4},
			kind:     eventsrc.KindMalformedSnapshot,
			seq:      4,
		},
	}

	folder := newChecklistFolder()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := folder.Fold(tt.snapshot, tt.events)

			assert.Nil(t, got)
			var fe *eventsrc.FoldError
			require.True(t, errors.As(err, &fe), "expected a FoldError, got %v", err)
			assert.Equal(t, tt.kind, fe.Kind)
			assert.Equal(t, tt.seq, fe.SequenceID)
			assert.True(t, eventsrc.IsFatal(err))
		})
	}
}

func TestFolder_ChildRemovalIsIdempotent(t *testing.T) {
	folder := newChecklistFolder()
	events := []eventsrc.Event{
		&opened{BaseEvent: ev(1, "")},
		&itemAdded{BaseEvent: ev(2, "milk")},
		&itemRemoved{BaseEvent: ev(3, "milk")},
	}
	once, err := folder.Fold(nil, events)
	require.NoError(t, err)

	twice, err := folder.Fold(nil, append(events,
		&itemRemoved{BaseEvent: ev(4, "milk")},
		&itemRemoved{BaseEvent: ev(5, "never-added")},
	))
	require.NoError(t, err)

	assert.Equal(t, once, twice)
}

func TestFolder_TerminalEventEndsAggregate(t *testing.T) {
	got, err := newChecklistFolder().Fold(nil, []eventsrc.Event{
		&opened{BaseEvent: ev(1, "")},
		&archived{BaseEvent: ev(2, "")},
	})

	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestFoldError_Is(t *testing.T) {
	err := &eventsrc.FoldError{Kind: eventsrc.KindChildNotFound, AggregateID: "a", SequenceID: 3, Msg: "gone"}

	assert.ErrorIs(t, err, eventsrc.ErrChildNotFound)
	assert.NotErrorIs(t, err, eventsrc.ErrDuplicateChildID)
	assert.Equal(t, "ChildNotFound aggregate=a seq=3: gone", err.Error())
	assert.Equal(t, eventsrc.KindChildNotFound, eventsrc.KindOf(err))
	assert.Equal(t, eventsrc.Kind(0), eventsrc.KindOf(errors.New("boom")))
	assert.False(t, eventsrc.IsFatal(errors.New("boom")))
	assert.Equal(t, "DuplicateChildId", eventsrc.KindDuplicateChildID.String())
}

type stray struct {
	eventsrc.BaseEvent
}

func (stray) EventType() eventsrc.EventType { return "Stray" }

func TestFolder_ConcurrentFoldsShareSnapshot(t *testing.T) {
	// GIVEN one folder and one snapshot shared by every goroutine
	folder := newChecklistFolder()
	snap := &eventsrc.Snapshot[checklist]{
		AggregateID: "list-1",
		State:       &checklist{ID: "list-1", Status: "open", Items: []item{{Name: "milk"}}},
		SequenceID:  2,
	}

	// WHEN each goroutine folds its own item on top of the snapshot
	const workers = 16
	results := make([]*checklist, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = folder.Fold(snap, []eventsrc.Event{
				&itemNoted{BaseEvent: ev(3, "milk"), Note: note(fmt.Sprintf("note-%d", i))},
				&itemAdded{BaseEvent: ev(4, fmt.Sprintf("item-%d", i))},
			})
		}()
	}
	wg.Wait()

	// THEN every fold sees only its own events and the snapshot is untouched
	for i := range workers {
		require.NoError(t, errs[i])
		assert.Equal(t, []item{
			{Name: "milk", Note: note(fmt.Sprintf("note-%d", i))},
			{Name: fmt.Sprintf("item-%d", i)},
		}, results[i].Items)
	}
	assert.Equal(t, []item{{Name: "milk"}}, snap.State.Items)
}
