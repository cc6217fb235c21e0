package marketplace

import (
	"encoding/json"
	"fmt"

	"github.com/0m3kk/lunafold/eventsrc"
)

const (
	EventCreateMarketplaceOffer     eventsrc.EventType = "CreateMarketplaceOffer"
	EventUpdateMarketplaceOffer     eventsrc.EventType = "UpdateMarketplaceOffer"
	EventPublishMarketplaceOffer    eventsrc.EventType = "PublishMarketplaceOffer"
	EventDeleteMarketplaceOffer     eventsrc.EventType = "DeleteMarketplaceOffer"
	EventCreateMarketplacePlan      eventsrc.EventType = "CreateMarketplacePlan"
	EventUpdateMarketplacePlan      eventsrc.EventType = "UpdateMarketplacePlan"
	EventDeleteMarketplacePlan      eventsrc.EventType = "DeleteMarketplacePlan"
	EventCreateMarketplaceParameter eventsrc.EventType = "CreateMarketplaceParameter"
	EventUpdateMarketplaceParameter eventsrc.EventType = "UpdateMarketplaceParameter"
	EventDeleteMarketplaceParameter eventsrc.EventType = "DeleteMarketplaceParameter"
	EventCreateProvisioningStep     eventsrc.EventType = "CreateProvisioningStep"
	EventUpdateProvisioningStep     eventsrc.EventType = "UpdateProvisioningStep"
	EventDeleteProvisioningStep     eventsrc.EventType = "DeleteProvisioningStep"
)

// CreateMarketplaceOfferEvent creates the offer identified by the aggregate id.
type CreateMarketplaceOfferEvent struct {
	eventsrc.BaseEvent
	Properties OfferProperties `json:"properties"`
}

func (e CreateMarketplaceOfferEvent) EventType() eventsrc.EventType {
	return EventCreateMarketplaceOffer
}

type UpdateMarketplaceOfferEvent struct {
	eventsrc.BaseEvent
	Properties OfferProperties `json:"properties"`
}

func (e UpdateMarketplaceOfferEvent) EventType() eventsrc.EventType {
	return EventUpdateMarketplaceOffer
}

type PublishMarketplaceOfferEvent struct {
	eventsrc.BaseEvent
	Comments string `json:"comments,omitempty"`
}

func (e PublishMarketplaceOfferEvent) EventType() eventsrc.EventType {
	return EventPublishMarketplaceOffer
}

// DeleteMarketplaceOfferEvent ends the offer. No event may follow it.
type DeleteMarketplaceOfferEvent struct {
	eventsrc.BaseEvent
	Comments string `json:"comments,omitempty"`
}

func (e DeleteMarketplaceOfferEvent) EventType() eventsrc.EventType {
	return EventDeleteMarketplaceOffer
}

// CreateMarketplacePlanEvent adds the plan whose id is the event's Name.
type CreateMarketplacePlanEvent struct {
	eventsrc.BaseEvent
	Properties PlanProperties `json:"properties"`
}

func (e CreateMarketplacePlanEvent) EventType() eventsrc.EventType {
	return EventCreateMarketplacePlan
}

type UpdateMarketplacePlanEvent struct {
	eventsrc.BaseEvent
	Properties PlanProperties `json:"properties"`
}

func (e UpdateMarketplacePlanEvent) EventType() eventsrc.EventType {
	return EventUpdateMarketplacePlan
}

type DeleteMarketplacePlanEvent struct {
	eventsrc.BaseEvent
}

func (e DeleteMarketplacePlanEvent) EventType() eventsrc.EventType {
	return EventDeleteMarketplacePlan
}

type CreateMarketplaceParameterEvent struct {
	eventsrc.BaseEvent
	Properties ParameterProperties `json:"properties"`
}

func (e CreateMarketplaceParameterEvent) EventType() eventsrc.EventType {
	return EventCreateMarketplaceParameter
}

type UpdateMarketplaceParameterEvent struct {
	eventsrc.BaseEvent
	Properties ParameterProperties `json:"properties"`
}

func (e UpdateMarketplaceParameterEvent) EventType() eventsrc.EventType {
	return EventUpdateMarketplaceParameter
}

type DeleteMarketplaceParameterEvent struct {
	eventsrc.BaseEvent
}

func (e DeleteMarketplaceParameterEvent) EventType() eventsrc.EventType {
	return EventDeleteMarketplaceParameter
}

type CreateProvisioningStepEvent struct {
	eventsrc.BaseEvent
	Properties StepProperties `json:"properties"`
}

func (e CreateProvisioningStepEvent) EventType() eventsrc.EventType {
	return EventCreateProvisioningStep
}

func (e CreateProvisioningStepEvent) MarshalJSON() ([]byte, error) {
	props, err := stepPropertiesTypes.Encode(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step properties: %w", err)
	}
	type alias CreateProvisioningStepEvent
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&e),
		Properties: props,
	})
}

func (e *CreateProvisioningStepEvent) UnmarshalJSON(data []byte) error {
	type alias CreateProvisioningStepEvent
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := stepPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	e.Properties = props
	return nil
}

// UpdateProvisioningStepEvent overlays Properties onto an existing step of the same concrete type.
type UpdateProvisioningStepEvent struct {
	eventsrc.BaseEvent
	Properties StepProperties `json:"properties"`
}

func (e UpdateProvisioningStepEvent) EventType() eventsrc.EventType {
	return EventUpdateProvisioningStep
}

func (e UpdateProvisioningStepEvent) MarshalJSON() ([]byte, error) {
	props, err := stepPropertiesTypes.Encode(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode step properties: %w", err)
	}
	type alias UpdateProvisioningStepEvent
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&e),
		Properties: props,
	})
}

func (e *UpdateProvisioningStepEvent) UnmarshalJSON(data []byte) error {
	type alias UpdateProvisioningStepEvent
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := stepPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	e.Properties = props
	return nil
}

type DeleteProvisioningStepEvent struct {
	eventsrc.BaseEvent
}

func (e DeleteProvisioningStepEvent) EventType() eventsrc.EventType {
	return EventDeleteProvisioningStep
}
