package publishing

import (
	"encoding/json"
	"fmt"

	"github.com/0m3kk/lunafold/eventsrc"
)

const (
	EventCreateLunaApplication  eventsrc.EventType = "CreateLunaApplication"
	EventUpdateLunaApplication  eventsrc.EventType = "UpdateLunaApplication"
	EventPublishLunaApplication eventsrc.EventType = "PublishLunaApplication"
	EventDeleteLunaApplication  eventsrc.EventType = "DeleteLunaApplication"
	EventCreateLunaAPI          eventsrc.EventType = "CreateLunaAPI"
	EventUpdateLunaAPI          eventsrc.EventType = "UpdateLunaAPI"
	EventDeleteLunaAPI          eventsrc.EventType = "DeleteLunaAPI"
	EventCreateLunaAPIVersion   eventsrc.EventType = "CreateLunaAPIVersion"
	EventUpdateLunaAPIVersion   eventsrc.EventType = "UpdateLunaAPIVersion"
	EventDeleteLunaAPIVersion   eventsrc.EventType = "DeleteLunaAPIVersion"
)

// CreateLunaApplicationEvent creates the application named by the aggregate id.
type CreateLunaApplicationEvent struct {
	eventsrc.BaseEvent
	Properties ApplicationProperties `json:"properties"`
}

func (e CreateLunaApplicationEvent) EventType() eventsrc.EventType { return EventCreateLunaApplication }

type UpdateLunaApplicationEvent struct {
	eventsrc.BaseEvent
	Properties ApplicationProperties `json:"properties"`
}

func (e UpdateLunaApplicationEvent) EventType() eventsrc.EventType { return EventUpdateLunaApplication }

type PublishLunaApplicationEvent struct {
	eventsrc.BaseEvent
	Comments string `json:"comments,omitempty"`
}

func (e PublishLunaApplicationEvent) EventType() eventsrc.EventType {
	return EventPublishLunaApplication
}

// DeleteLunaApplicationEvent ends the application. No event may follow it.
type DeleteLunaApplicationEvent struct {
	eventsrc.BaseEvent
	Comments string `json:"comments,omitempty"`
}

func (e DeleteLunaApplicationEvent) EventType() eventsrc.EventType { return EventDeleteLunaApplication }

// CreateLunaAPIEvent adds the API whose name is the event's Name.
type CreateLunaAPIEvent struct {
	eventsrc.BaseEvent
	Properties APIProperties `json:"properties"`
}

func (e CreateLunaAPIEvent) EventType() eventsrc.EventType { return EventCreateLunaAPI }

type UpdateLunaAPIEvent struct {
	eventsrc.BaseEvent
	Properties APIProperties `json:"properties"`
}

func (e UpdateLunaAPIEvent) EventType() eventsrc.EventType { return EventUpdateLunaAPI }

type DeleteLunaAPIEvent struct {
	eventsrc.BaseEvent
	Comments string `json:"comments,omitempty"`
}

func (e DeleteLunaAPIEvent) EventType() eventsrc.EventType { return EventDeleteLunaAPI }

// CreateLunaAPIVersionEvent adds version Name to the API named APIName.
type CreateLunaAPIVersionEvent struct {
	eventsrc.BaseEvent
	APIName    string            `json:"api_name"`
	Properties VersionProperties `json:"properties"`
}

func (e CreateLunaAPIVersionEvent) EventType() eventsrc.EventType { return EventCreateLunaAPIVersion }

func (e CreateLunaAPIVersionEvent) MarshalJSON() ([]byte, error) {
	props, err := versionPropertiesTypes.Encode(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version properties: %w", err)
	}
	type alias CreateLunaAPIVersionEvent
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&e),
		Properties: props,
	})
}

func (e *CreateLunaAPIVersionEvent) UnmarshalJSON(data []byte) error {
	type alias CreateLunaAPIVersionEvent
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := versionPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	e.Properties = props
	return nil
}

// UpdateLunaAPIVersionEvent overlays Properties onto an existing version. The
// properties must be of the same concrete type as the version's.
type UpdateLunaAPIVersionEvent struct {
	eventsrc.BaseEvent
	APIName    string            `json:"api_name"`
	Properties VersionProperties `json:"properties"`
}

func (e UpdateLunaAPIVersionEvent) EventType() eventsrc.EventType { return EventUpdateLunaAPIVersion }

func (e UpdateLunaAPIVersionEvent) MarshalJSON() ([]byte, error) {
	props, err := versionPropertiesTypes.Encode(e.Properties)
	if err != nil {
		return nil, fmt.Errorf("failed to encode version properties: %w", err)
	}
	type alias UpdateLunaAPIVersionEvent
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&e),
		Properties: props,
	})
}

func (e *UpdateLunaAPIVersionEvent) UnmarshalJSON(data []byte) error {
	type alias UpdateLunaAPIVersionEvent
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(e),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := versionPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	e.Properties = props
	return nil
}

type DeleteLunaAPIVersionEvent struct {
	eventsrc.BaseEvent
	APIName  string `json:"api_name"`
	Comments string `json:"comments,omitempty"`
}

func (e DeleteLunaAPIVersionEvent) EventType() eventsrc.EventType { return EventDeleteLunaAPIVersion }
