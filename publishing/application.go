// Package publishing reconstructs Luna applications, their APIs and API
// versions from the publishing event log.
package publishing

import (
	"encoding/json"
	"fmt"

	"github.com/0m3kk/lunafold/eventsrc"
)

// Kind is the aggregate kind of applications.
const Kind eventsrc.AggregateKind = "application"

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
	StatusDeleted   Status = "Deleted"
)

// Application is the aggregate root. Its id is the application name.
type Application struct {
	Name       string                `json:"name" validate:"required"`
	Status     Status                `json:"status" validate:"required,oneof=Draft Published Deleted"`
	Properties ApplicationProperties `json:"properties"`
	APIs       []API                 `json:"apis" validate:"dive"`
}

// API is owned by its application. Its id is the API name.
type API struct {
	Name       string        `json:"name" validate:"required"`
	Properties APIProperties `json:"properties"`
	Versions   []APIVersion  `json:"versions" validate:"dive"`
}

// APIVersion is owned by its API. Its id is the version name.
type APIVersion struct {
	Name       string            `json:"name" validate:"required"`
	Properties VersionProperties `json:"properties" validate:"required"`
}

// MarshalJSON writes the polymorphic properties with their type tag.
func (v APIVersion) MarshalJSON() ([]byte, error) {
	props, err := versionPropertiesTypes.Encode(v.Properties)
	if err != nil {
		return nil, fmt.Errorf("version %s: %w", v.Name, err)
	}
	type alias APIVersion
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&v),
		Properties: props,
	})
}

func (v *APIVersion) UnmarshalJSON(data []byte) error {
	type alias APIVersion
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(v),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := versionPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	v.Properties = props
	return nil
}

func (a *Application) findAPI(name string) (*API, error) {
	i, err := eventsrc.FindChild(a.APIs, apiName, name)
	if err != nil {
		return nil, err
	}
	return &a.APIs[i], nil
}

func apiName(a *API) string            { return a.Name }
func versionName(v *APIVersion) string { return v.Name }

// Clone returns a deep copy of the application.
func (a *Application) Clone() *Application {
	if a == nil {
		return nil
	}
	out := &Application{
		Name:       a.Name,
		Status:     a.Status,
		Properties: a.Properties.Clone(),
	}
	if a.APIs != nil {
		out.APIs = make([]API, len(a.APIs))
		for i, api := range a.APIs {
			out.APIs[i] = api.clone()
		}
	}
	return out
}

func (a API) clone() API {
	out := API{Name: a.Name, Properties: a.Properties.Clone()}
	if a.Versions != nil {
		out.Versions = make([]APIVersion, len(a.Versions))
		for i, v := range a.Versions {
			out.Versions[i] = APIVersion{Name: v.Name, Properties: cloneVersionProperties(v.Properties)}
		}
	}
	return out
}
