package publishing

import (
	"slices"

	"github.com/0m3kk/lunafold/codec"
	"github.com/0m3kk/lunafold/eventsrc"
)

// Tag is a free-form key/value label.
type Tag struct {
	Key   string `json:"key" validate:"required"`
	Value string `json:"value"`
}

// ApplicationProperties are the editable attributes of an application.
// A nil field is absent: in an update event it leaves the current value untouched.
type ApplicationProperties struct {
	DisplayName      *string  `json:"display_name,omitempty"`
	Description      *string  `json:"description,omitempty"`
	LogoImageURL     *string  `json:"logo_image_url,omitempty"`
	DocumentationURL *string  `json:"documentation_url,omitempty"`
	Publisher        *string  `json:"publisher,omitempty"`
	Owners           []string `json:"owners"`
	Tags             []Tag    `json:"tags" validate:"dive"`
}

func (p *ApplicationProperties) Merge(update ApplicationProperties) error {
	eventsrc.Overlay(&p.DisplayName, update.DisplayName)
	eventsrc.Overlay(&p.Description, update.Description)
	eventsrc.Overlay(&p.LogoImageURL, update.LogoImageURL)
	eventsrc.Overlay(&p.DocumentationURL, update.DocumentationURL)
	eventsrc.Overlay(&p.Publisher, update.Publisher)
	eventsrc.OverlaySlice(&p.Owners, update.Owners)
	eventsrc.OverlaySlice(&p.Tags, update.Tags)
	return nil
}

func (p ApplicationProperties) Clone() ApplicationProperties {
	return ApplicationProperties{
		DisplayName:      eventsrc.ClonePtr(p.DisplayName),
		Description:      eventsrc.ClonePtr(p.Description),
		LogoImageURL:     eventsrc.ClonePtr(p.LogoImageURL),
		DocumentationURL: eventsrc.ClonePtr(p.DocumentationURL),
		Publisher:        eventsrc.ClonePtr(p.Publisher),
		Owners:           slices.Clone(p.Owners),
		Tags:             slices.Clone(p.Tags),
	}
}

// APIProperties are the editable attributes of an API.
type APIProperties struct {
	DisplayName      *string `json:"display_name,omitempty"`
	Description      *string `json:"description,omitempty"`
	DocumentationURL *string `json:"documentation_url,omitempty"`
	AdvancedSettings *string `json:"advanced_settings,omitempty"`
}

func (p *APIProperties) Merge(update APIProperties) error {
	eventsrc.Overlay(&p.DisplayName, update.DisplayName)
	eventsrc.Overlay(&p.Description, update.Description)
	eventsrc.Overlay(&p.DocumentationURL, update.DocumentationURL)
	eventsrc.Overlay(&p.AdvancedSettings, update.AdvancedSettings)
	return nil
}

func (p APIProperties) Clone() APIProperties {
	return APIProperties{
		DisplayName:      eventsrc.ClonePtr(p.DisplayName),
		Description:      eventsrc.ClonePtr(p.Description),
		DocumentationURL: eventsrc.ClonePtr(p.DocumentationURL),
		AdvancedSettings: eventsrc.ClonePtr(p.AdvancedSettings),
	}
}

// VersionProperties is the polymorphic property set of an API version. The
// concrete type depends on the kind of API the version serves.
type VersionProperties interface {
	codec.Tagged
	eventsrc.Mergeable[VersionProperties]
	Clone() VersionProperties
}

const (
	TagRealtime  = "realtime"
	TagPipeline  = "pipeline"
	TagMLProject = "mlproject"
)

var versionPropertiesTypes = newVersionPropertiesTypes()

func newVersionPropertiesTypes() *codec.TypeMap[VersionProperties] {
	m := codec.NewTypeMap[VersionProperties]("version properties")
	m.Register(func() VersionProperties { return &RealtimeVersionProperties{} })
	m.Register(func() VersionProperties { return &PipelineVersionProperties{} })
	m.Register(func() VersionProperties { return &MLProjectVersionProperties{} })
	return m
}

func typeMismatch(current, update VersionProperties) error {
	return eventsrc.NewError(eventsrc.KindTypeMismatch,
		"cannot merge %s version properties into %s", update.TypeTag(), current.TypeTag())
}

// RealtimeVersionProperties describe a version served by an online endpoint.
type RealtimeVersionProperties struct {
	Description        *string `json:"description,omitempty"`
	EndpointURL        *string `json:"endpoint_url,omitempty"`
	IsManagedEndpoint  *bool   `json:"is_managed_endpoint,omitempty"`
	AuthenticationType *string `json:"authentication_type,omitempty"`
	ModelName          *string `json:"model_name,omitempty"`
	ModelVersion       *string `json:"model_version,omitempty"`
	AdvancedSettings   *string `json:"advanced_settings,omitempty"`
}

func (p *RealtimeVersionProperties) TypeTag() string { return TagRealtime }

func (p *RealtimeVersionProperties) Merge(update VersionProperties) error {
	u, ok := update.(*RealtimeVersionProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.EndpointURL, u.EndpointURL)
	eventsrc.Overlay(&p.IsManagedEndpoint, u.IsManagedEndpoint)
	eventsrc.Overlay(&p.AuthenticationType, u.AuthenticationType)
	eventsrc.Overlay(&p.ModelName, u.ModelName)
	eventsrc.Overlay(&p.ModelVersion, u.ModelVersion)
	eventsrc.Overlay(&p.AdvancedSettings, u.AdvancedSettings)
	return nil
}

func (p *RealtimeVersionProperties) Clone() VersionProperties {
	return &RealtimeVersionProperties{
		Description:        eventsrc.ClonePtr(p.Description),
		EndpointURL:        eventsrc.ClonePtr(p.EndpointURL),
		IsManagedEndpoint:  eventsrc.ClonePtr(p.IsManagedEndpoint),
		AuthenticationType: eventsrc.ClonePtr(p.AuthenticationType),
		ModelName:          eventsrc.ClonePtr(p.ModelName),
		ModelVersion:       eventsrc.ClonePtr(p.ModelVersion),
		AdvancedSettings:   eventsrc.ClonePtr(p.AdvancedSettings),
	}
}

// PipelineVersionProperties describe a version backed by training and inference pipelines.
type PipelineVersionProperties struct {
	Description      *string `json:"description,omitempty"`
	TrainModelID     *string `json:"train_model_id,omitempty"`
	BatchInferenceID *string `json:"batch_inference_id,omitempty"`
	DeployModelID    *string `json:"deploy_model_id,omitempty"`
	AdvancedSettings *string `json:"advanced_settings,omitempty"`
}

func (p *PipelineVersionProperties) TypeTag() string { return TagPipeline }

func (p *PipelineVersionProperties) Merge(update VersionProperties) error {
	u, ok := update.(*PipelineVersionProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.TrainModelID, u.TrainModelID)
	eventsrc.Overlay(&p.BatchInferenceID, u.BatchInferenceID)
	eventsrc.Overlay(&p.DeployModelID, u.DeployModelID)
	eventsrc.Overlay(&p.AdvancedSettings, u.AdvancedSettings)
	return nil
}

func (p *PipelineVersionProperties) Clone() VersionProperties {
	return &PipelineVersionProperties{
		Description:      eventsrc.ClonePtr(p.Description),
		TrainModelID:     eventsrc.ClonePtr(p.TrainModelID),
		BatchInferenceID: eventsrc.ClonePtr(p.BatchInferenceID),
		DeployModelID:    eventsrc.ClonePtr(p.DeployModelID),
		AdvancedSettings: eventsrc.ClonePtr(p.AdvancedSettings),
	}
}

// MLProjectVersionProperties describe a version built from an ML project in a git repository.
type MLProjectVersionProperties struct {
	Description       *string `json:"description,omitempty"`
	GitURL            *string `json:"git_url,omitempty"`
	GitVersion        *string `json:"git_version,omitempty"`
	LinkedServiceType *string `json:"linked_service_type,omitempty"`
	RunConfigFile     *string `json:"run_config_file,omitempty"`
	AdvancedSettings  *string `json:"advanced_settings,omitempty"`
}

func (p *MLProjectVersionProperties) TypeTag() string { return TagMLProject }

func (p *MLProjectVersionProperties) Merge(update VersionProperties) error {
	u, ok := update.(*MLProjectVersionProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.GitURL, u.GitURL)
	eventsrc.Overlay(&p.GitVersion, u.GitVersion)
	eventsrc.Overlay(&p.LinkedServiceType, u.LinkedServiceType)
	eventsrc.Overlay(&p.RunConfigFile, u.RunConfigFile)
	eventsrc.Overlay(&p.AdvancedSettings, u.AdvancedSettings)
	return nil
}

func (p *MLProjectVersionProperties) Clone() VersionProperties {
	return &MLProjectVersionProperties{
		Description:       eventsrc.ClonePtr(p.Description),
		GitURL:            eventsrc.ClonePtr(p.GitURL),
		GitVersion:        eventsrc.ClonePtr(p.GitVersion),
		LinkedServiceType: eventsrc.ClonePtr(p.LinkedServiceType),
		RunConfigFile:     eventsrc.ClonePtr(p.RunConfigFile),
		AdvancedSettings:  eventsrc.ClonePtr(p.AdvancedSettings),
	}
}

func cloneVersionProperties(p VersionProperties) VersionProperties {
	if p == nil {
		return nil
	}
	return p.Clone()
}
