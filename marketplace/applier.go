package marketplace

import (
	"fmt"
	"reflect"

	"github.com/0m3kk/lunafold/codec"
	"github.com/0m3kk/lunafold/eventsrc"
)

// NewRegistry returns the event registry of offers.
func NewRegistry() *eventsrc.Registry {
	r := eventsrc.NewRegistry(Kind)
	r.Register(eventsrc.ClassCreation, func() eventsrc.Event { return &CreateMarketplaceOfferEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateMarketplaceOfferEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &PublishMarketplaceOfferEvent{} })
	r.Register(eventsrc.ClassTerminal, func() eventsrc.Event { return &DeleteMarketplaceOfferEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &CreateMarketplacePlanEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateMarketplacePlanEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &DeleteMarketplacePlanEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &CreateMarketplaceParameterEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateMarketplaceParameterEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &DeleteMarketplaceParameterEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &CreateProvisioningStepEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &UpdateProvisioningStepEvent{} })
	r.Register(eventsrc.ClassOrdinary, func() eventsrc.Event { return &DeleteProvisioningStepEvent{} })
	return r
}

func NewFolder() *eventsrc.Folder[Offer] {
	return eventsrc.NewFolder[Offer](NewRegistry(), applier{})
}

func NewCodec() codec.Codec[Offer] {
	return codec.New[Offer](Kind)
}

// NewReconstructor wires the offer folder and codec to the given stores.
func NewReconstructor(
	events eventsrc.EventStore,
	snapshots eventsrc.SnapshotStore,
	opts ...eventsrc.ReconstructorOption,
) *eventsrc.Reconstructor[Offer] {
	return eventsrc.NewReconstructor(events, snapshots, NewFolder(), NewCodec(), opts...)
}

type applier struct{}

func (applier) Clone(o *Offer) *Offer { return o.Clone() }

func (applier) Create(evt eventsrc.Event) (*Offer, error) {
	e, ok := evt.(*CreateMarketplaceOfferEvent)
	if !ok {
		return nil, fmt.Errorf("unexpected creation event: %s", reflect.TypeOf(evt))
	}
	return &Offer{
		ID:                e.AggregateID(),
		Status:            StatusDraft,
		Properties:        e.Properties.Clone(),
		Plans:             []Plan{},
		Parameters:        []Parameter{},
		ProvisioningSteps: []ProvisioningStep{},
	}, nil
}

// Apply changes the state of the offer based on an event.
func (applier) Apply(o *Offer, evt eventsrc.Event) error {
	switch e := evt.(type) {
	case *UpdateMarketplaceOfferEvent:
		return o.Properties.Merge(e.Properties)
	case *PublishMarketplaceOfferEvent:
		o.Status = StatusPublished
		return nil
	case *DeleteMarketplaceOfferEvent:
		o.Status = StatusDeleted
		return nil

	case *CreateMarketplacePlanEvent:
		plans, err := eventsrc.AddChild(o.Plans, Plan{ID: e.TargetName(), Properties: e.Properties.Clone()}, planID)
		if err != nil {
			return err
		}
		o.Plans = plans
		return nil
	case *UpdateMarketplacePlanEvent:
		i, err := eventsrc.FindChild(o.Plans, planID, e.TargetName())
		if err != nil {
			return err
		}
		return o.Plans[i].Properties.Merge(e.Properties)
	case *DeleteMarketplacePlanEvent:
		o.Plans = eventsrc.RemoveChildren(o.Plans, planID, e.TargetName())
		return nil

	case *CreateMarketplaceParameterEvent:
		params, err := eventsrc.AddChild(o.Parameters, Parameter{Name: e.TargetName(), Properties: e.Properties.Clone()}, parameterName)
		if err != nil {
			return err
		}
		o.Parameters = params
		return nil
	case *UpdateMarketplaceParameterEvent:
		i, err := eventsrc.FindChild(o.Parameters, parameterName, e.TargetName())
		if err != nil {
			return err
		}
		return o.Parameters[i].Properties.Merge(e.Properties)
	case *DeleteMarketplaceParameterEvent:
		o.Parameters = eventsrc.RemoveChildren(o.Parameters, parameterName, e.TargetName())
		return nil

	case *CreateProvisioningStepEvent:
		return o.onStepCreated(e)
	case *UpdateProvisioningStepEvent:
		return o.onStepUpdated(e)
	case *DeleteProvisioningStepEvent:
		o.ProvisioningSteps = eventsrc.RemoveChildren(o.ProvisioningSteps, stepName, e.TargetName())
		return nil

	default:
		return fmt.Errorf("unknown event type: %s", reflect.TypeOf(evt))
	}
}

func (o *Offer) onStepCreated(e *CreateProvisioningStepEvent) error {
	if e.Properties == nil {
		return eventsrc.NewError(eventsrc.KindMalformedEvent, "step %q has no properties", e.TargetName())
	}
	steps, err := eventsrc.AddChild(o.ProvisioningSteps, ProvisioningStep{
		Name:       e.TargetName(),
		Properties: e.Properties.Clone(),
	}, stepName)
	if err != nil {
		return err
	}
	o.ProvisioningSteps = steps
	return nil
}

func (o *Offer) onStepUpdated(e *UpdateProvisioningStepEvent) error {
	i, err := eventsrc.FindChild(o.ProvisioningSteps, stepName, e.TargetName())
	if err != nil {
		return err
	}
	if e.Properties == nil {
		return nil
	}
	return o.ProvisioningSteps[i].Properties.Merge(e.Properties)
}
