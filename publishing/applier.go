package publishing

import (
	"fmt"
	"reflect"

	"github.com/0m3kk/lunafold/codec"
	"github.com/0m3kk/lunafold/eventsrc"
)

// NewRegistry returns the event registry of applications.
func NewRegistry() *eventsrc.Registry {
	r := eventsrc.NewRegistry(Kind)
	r.Register(eventsrc.ClassCreation, func() eventsrc.Event { return &CreateLunaApplicationEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateLunaApplicationEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &PublishLunaApplicationEvent{} })
	r.Register(eventsrc.ClassTerminal, func() eventsrc.Event { return &DeleteLunaApplicationEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &CreateLunaAPIEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateLunaAPIEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &DeleteLunaAPIEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &CreateLunaAPIVersionEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateLunaAPIVersionEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &DeleteLunaAPIVersionEvent{} })
	return r
}

// NewFolder returns a folder for applications.
func NewFolder() *eventsrc.Folder[Application] {
	return eventsrc.NewFolder[Application](NewRegistry(), applier{})
}

// NewCodec returns the serialization adapter for applications.
func NewCodec() codec.Codec[Application] {
	return codec.New[Application](Kind)
}

// NewReconstructor wires the application folder and codec to the given stores.
func NewReconstructor(
	events eventsrc.EventStore,
	snapshots eventsrc.SnapshotStore,
	opts ...eventsrc.ReconstructorOption,
) *eventsrc.Reconstructor[Application] {
	return eventsrc.NewReconstructor(events, snapshots, NewFolder(), NewCodec(), opts...)
}

type applier struct{}

func (applier) Clone(a *Application) *Application { return a.Clone() }

func (applier) Create(evt eventsrc.Event) (*Application, error) {
	e, ok := evt.(*CreateLunaApplicationEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected creation event: %s", reflect.TypeOf(evt))
	}
	return &Application{
		Name:       e.AggregateID(),
		Status:     StatusDraft,
		Properties: e.Properties.Clone(),
		APIs:       []API{},
	}, nil
}

// Apply changes the state of the application based on an event.
func (applier) Apply(a *Application, evt eventsrc.Event) error {
	switch e := evt.(type) {
	case *UpdateLunaApplicationEvent:
		return a.Properties.Merge(e.Properties)
	case *PublishLunaApplicationEvent:
		a.Status = StatusPublished
		return nil
	case *DeleteLunaApplicationEvent:
		a.Status = StatusDeleted
		return nil
	case *CreateLunaAPIEvent:
		return a.onAPICreated(e)
	case *UpdateLunaAPIEvent:
		return a.onAPIUpdated(e)
	case *DeleteLunaAPIEvent:
		a.APIs = eventsrc.RemoveChildren(a.APIs, apiName, e.TargetName())
		return nil
	case *CreateLunaAPIVersionEvent:
		return a.onVersionCreated(e)
	case *UpdateLunaAPIVersionEvent:
		return a.onVersionUpdated(e)
	case *DeleteLunaAPIVersionEvent:
		return a.onVersionDeleted(e)
	default:
		return fmt.Errorf("unknown event type: %s", reflect.TypeOf(evt))
	}
}

func (a *Application) onAPICreated(e *CreateLunaAPIEvent) error {
	apis, err := eventsrc.AddChild(a.APIs, API{
		Name:       e.TargetName(),
		Properties: e.Properties.Clone(),
		Versions:   []APIVersion{},
	}, apiName)
	if err != nil {
		return err
	}
	a.APIs = apis
	return nil
}

func (a *Application) onAPIUpdated(e *UpdateLunaAPIEvent) error {
	api, err := a.findAPI(e.TargetName())
	if err != nil {
		return err
	}
	return api.Properties.Merge(e.Properties)
}

func (a *Application) onVersionCreated(e *CreateLunaAPIVersionEvent) error {
	if e.Properties == nil {
		return eventsrc.NewError(eventsrc.KindMalformedEvent, "version %q has no properties", e.TargetName())
	}
	api, err := a.findAPI(e.APIName)
	if err != nil {
		return err
	}
	versions, err := eventsrc.AddChild(api.Versions, APIVersion{
		Name:       e.TargetName(),
		Properties: e.Properties.Clone(),
	}, versionName)
	if err != nil {
		return err
	}
	api.Versions = versions
	return nil
}

func (a *Application) onVersionUpdated(e *UpdateLunaAPIVersionEvent) error {
	api, err := a.findAPI(e.APIName)
	if err != nil {
		return err
	}
	i, err := eventsrc.FindChild(api.Versions, versionName, e.TargetName())
	if err != nil {
		return err
	}
	if e.Properties == nil {
		return nil
	}
	return api.Versions[i].Properties.Merge(e.Properties)
}

// onVersionDeleted is a no-op when the parent API is already gone.
func (a *Application) onVersionDeleted(e *DeleteLunaAPIVersionEvent) error {
	for i := range a.APIs {
		if a.APIs[i].Name == e.APIName {
			a.APIs[i].Versions = eventsrc.RemoveChildren(a.APIs[i].Versions, versionName, e.TargetName())
		}
	}
	return nil
}
