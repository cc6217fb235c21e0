package eventsrc_test

import (
	"fmt"

	"github.com/0m3kk/lunafold/codec"
	"github.com/0m3kk/lunafold/eventsrc"
)

// A checklist aggregate: items are children keyed by name.

const checklistKind eventsrc.AggregateKind = "checklist"

type item struct {
	Name string  `json:"name" validate:"required"`
	Note *string `json:"note,omitempty"`
}

type checklist struct {
	ID     string `json:"id" validate:"required"`
	Title  string `json:"title"`
	Status string `json:"status" validate:"required"`
	Items  []item `json:"items"`
}

type opened struct {
	eventsrc.BaseEvent
	Title string `json:"title"`
}

func (opened) EventType() eventsrc.EventType { return "Opened" }

type itemAdded struct {
	eventsrc.BaseEvent
	Note *string `json:"note,omitempty"`
}

func (itemAdded) EventType() eventsrc.EventType { return "ItemAdded" }

type itemNoted struct {
	eventsrc.BaseEvent
	Note *string `json:"note,omitempty"`
}

func (itemNoted) EventType() eventsrc.EventType { return "ItemNoted" }

type itemRemoved struct {
	eventsrc.BaseEvent
}

func (itemRemoved) EventType() eventsrc.EventType { return "ItemRemoved" }

type archived struct {
	eventsrc.BaseEvent
}

func (archived) EventType() eventsrc.EventType { return "Archived" }

func newChecklistRegistry() *eventsrc.Registry {
	r := eventsrc.NewRegistry(checklistKind)
	r.Register(eventsrc.ClassCreation, func() eventsrc.Event { return &opened{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &itemAdded{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &itemNoted{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &itemRemoved{} })
	r.Register(eventsrc.ClassTerminal, func() eventsrc.Event { return &archived{} })
	return r
}

func itemName(i *item) string { return i.Name }

type checklistApplier struct{}

func (checklistApplier) Create(evt eventsrc.Event) (*checklist, error) {
	e := evt.(*opened)
	return &checklist{ID: e.AggregateID(), Title: e.Title, Status: "open", Items: []item{}}, nil
}

func (checklistApplier) Apply(c *checklist, evt eventsrc.Event) error {
	switch e := evt.(type) {
	case *itemAdded:
		items, err := eventsrc.AddChild(c.Items, item{Name: e.TargetName(), Note: eventsrc.ClonePtr(e.Note)}, itemName)
		if err != nil {
			return err
		}
		c.Items = items
	case *itemNoted:
		i, err := eventsrc.FindChild(c.Items, itemName, e.TargetName())
		if err != nil {
			return err
		}
		eventsrc.Overlay(&c.Items[i].Note, e.Note)
	case *itemRemoved:
		c.Items = eventsrc.RemoveChildren(c.Items, itemName, e.TargetName())
	case *archived:
		c.Status = "archived"
	default:
		return fmt.Errorf("unexpected event %T", evt)
	}
	return nil
}

func (checklistApplier) Clone(c *checklist) *checklist {
	out := *c
	out.Items = make([]item, len(c.Items))
	for i, it := range c.Items {
		out.Items[i] = item{Name: it.Name, Note: eventsrc.ClonePtr(it.Note)}
	}
	return &out
}

func newChecklistFolder() *eventsrc.Folder[checklist] {
	return eventsrc.NewFolder[checklist](newChecklistRegistry(), checklistApplier{})
}

func newChecklistReconstructor(store interface {
	eventsrc.EventStore
	eventsrc.SnapshotStore
}, opts ...eventsrc.ReconstructorOption,
) *eventsrc.Reconstructor[checklist] {
	return eventsrc.NewReconstructor[checklist](store, store, newChecklistFolder(), codec.New[checklist](checklistKind), opts...)
}

func ev(seq int64, name string) eventsrc.BaseEvent {
	return eventsrc.BaseEvent{AggID: "list-1", Name: name, Seq: seq}
}

func note(s string) *string { return &s }
