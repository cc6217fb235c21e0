package marketplace

import (
	"slices"

	"github.com/0m3kk/lunafold/codec"
	"github.com/0m3kk/lunafold/eventsrc"
)

// OfferProperties are the editable attributes of an offer. Nil fields are absent.
type OfferProperties struct {
	DisplayName  *string  `json:"display_name,omitempty"`
	Description  *string  `json:"description,omitempty"`
	Publisher    *string  `json:"publisher,omitempty"`
	OfferVersion *string  `json:"offer_version,omitempty"`
	LogoImageURL *string  `json:"logo_image_url,omitempty"`
	ContactEmail *string  `json:"contact_email,omitempty"`
	Owners       []string `json:"owners"`
}

func (p *OfferProperties) Merge(update OfferProperties) error {
	eventsrc.Overlay(&p.DisplayName, update.DisplayName)
	eventsrc.Overlay(&p.Description, update.Description)
	eventsrc.Overlay(&p.Publisher, update.Publisher)
	eventsrc.Overlay(&p.OfferVersion, update.OfferVersion)
	eventsrc.Overlay(&p.LogoImageURL, update.LogoImageURL)
	eventsrc.Overlay(&p.ContactEmail, update.ContactEmail)
	eventsrc.OverlaySlice(&p.Owners, update.Owners)
	return nil
}

func (p OfferProperties) Clone() OfferProperties {
	return OfferProperties{
		DisplayName:  eventsrc.ClonePtr(p.DisplayName),
		Description:  eventsrc.ClonePtr(p.Description),
		Publisher:    eventsrc.ClonePtr(p.Publisher),
		OfferVersion: eventsrc.ClonePtr(p.OfferVersion),
		LogoImageURL: eventsrc.ClonePtr(p.LogoImageURL),
		ContactEmail: eventsrc.ClonePtr(p.ContactEmail),
		Owners:       slices.Clone(p.Owners),
	}
}

type PlanProperties struct {
	DisplayName            *string `json:"display_name,omitempty"`
	Description            *string `json:"description,omitempty"`
	IsPrivate              *bool   `json:"is_private,omitempty"`
	DataRetentionInDays    *int    `json:"data_retention_in_days,omitempty"`
	SubscribeWebhookName   *string `json:"subscribe_webhook_name,omitempty"`
	UnsubscribeWebhookName *string `json:"unsubscribe_webhook_name,omitempty"`
}

func (p *PlanProperties) Merge(update PlanProperties) error {
	eventsrc.Overlay(&p.DisplayName, update.DisplayName)
	eventsrc.Overlay(&p.Description, update.Description)
	eventsrc.Overlay(&p.IsPrivate, update.IsPrivate)
	eventsrc.Overlay(&p.DataRetentionInDays, update.DataRetentionInDays)
	eventsrc.Overlay(&p.SubscribeWebhookName, update.SubscribeWebhookName)
	eventsrc.Overlay(&p.UnsubscribeWebhookName, update.UnsubscribeWebhookName)
	return nil
}

func (p PlanProperties) Clone() PlanProperties {
	return PlanProperties{
		DisplayName:            eventsrc.ClonePtr(p.DisplayName),
		Description:            eventsrc.ClonePtr(p.Description),
		IsPrivate:              eventsrc.ClonePtr(p.IsPrivate),
		DataRetentionInDays:    eventsrc.ClonePtr(p.DataRetentionInDays),
		SubscribeWebhookName:   eventsrc.ClonePtr(p.SubscribeWebhookName),
		UnsubscribeWebhookName: eventsrc.ClonePtr(p.UnsubscribeWebhookName),
	}
}

// ParameterProperties describe a value the subscriber supplies when buying a plan.
type ParameterProperties struct {
	DisplayName *string  `json:"display_name,omitempty"`
	Description *string  `json:"description,omitempty"`
	ValueType   *string  `json:"value_type,omitempty"`
	IsRequired  *bool    `json:"is_required,omitempty"`
	FromList    *bool    `json:"from_list,omitempty"`
	ValueList   []string `json:"value_list"`
	Minimum     *int64   `json:"minimum,omitempty"`
	Maximum     *int64   `json:"maximum,omitempty"`
}

func (p *ParameterProperties) Merge(update ParameterProperties) error {
	eventsrc.Overlay(&p.DisplayName, update.DisplayName)
	eventsrc.Overlay(&p.Description, update.Description)
	eventsrc.Overlay(&p.ValueType, update.ValueType)
	eventsrc.Overlay(&p.IsRequired, update.IsRequired)
	eventsrc.Overlay(&p.FromList, update.FromList)
	eventsrc.OverlaySlice(&p.ValueList, update.ValueList)
	eventsrc.Overlay(&p.Minimum, update.Minimum)
	eventsrc.Overlay(&p.Maximum, update.Maximum)
	return nil
}

func (p ParameterProperties) Clone() ParameterProperties {
	return ParameterProperties{
		DisplayName: eventsrc.ClonePtr(p.DisplayName),
		Description: eventsrc.ClonePtr(p.Description),
		ValueType:   eventsrc.ClonePtr(p.ValueType),
		IsRequired:  eventsrc.ClonePtr(p.IsRequired),
		FromList:    eventsrc.ClonePtr(p.FromList),
		ValueList:   slices.Clone(p.ValueList),
		Minimum:     eventsrc.ClonePtr(p.Minimum),
		Maximum:     eventsrc.ClonePtr(p.Maximum),
	}
}

// StepProperties is the polymorphic property set of a provisioning step.
type StepProperties interface {
	codec.Tagged
	eventsrc.Mergeable[StepProperties]
	Clone() StepProperties
	// SecretNames lists the secrets the step references.
	SecretNames() []string
}

const (
	TagScript      = "script"
	TagARMTemplate = "arm_template"
	TagWebhook     = "webhook"
)

var stepPropertiesTypes = newStepPropertiesTypes()

func newStepPropertiesTypes() *codec.TypeMap[StepProperties] {
	m := codec.NewTypeMap[StepProperties]("step properties")
	m.Register(func() StepProperties { return &ScriptStepProperties{} })
	m.Register(func() StepProperties { return &ARMTemplateStepProperties{} })
	m.Register(func() StepProperties { return &WebhookStepProperties{} })
	return m
}

func typeMismatch(current, update StepProperties) error {
	return eventsrc.NewError(eventsrc.KindTypeMismatch,
		"cannot merge %s step properties into %s", update.TypeTag(), current.TypeTag())
}

func secretNames(names ...*string) []string {
	var out []string
	for _, n := range names {
		if n != nil && *n != "" {
			out = append(out, *n)
		}
	}
	return out
}

// ScriptStepProperties run a script packaged at ScriptURL.
type ScriptStepProperties struct {
	Description         *string  `json:"description,omitempty"`
	IsSynchronous       *bool    `json:"is_synchronous,omitempty"`
	ScriptURL           *string  `json:"script_url,omitempty"`
	ScriptArguments     []string `json:"script_arguments"`
	TimeoutInSeconds    *int     `json:"timeout_in_seconds,omitempty"`
	ArgumentsSecretName *string  `json:"arguments_secret_name,omitempty"`
}

func (p *ScriptStepProperties) TypeTag() string { return TagScript }

func (p *ScriptStepProperties) Merge(update StepProperties) error {
	u, ok := update.(*ScriptStepProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.IsSynchronous, u.IsSynchronous)
	eventsrc.Overlay(&p.ScriptURL, u.ScriptURL)
	eventsrc.OverlaySlice(&p.ScriptArguments, u.ScriptArguments)
	eventsrc.Overlay(&p.TimeoutInSeconds, u.TimeoutInSeconds)
	eventsrc.Overlay(&p.ArgumentsSecretName, u.ArgumentsSecretName)
	return nil
}

func (p *ScriptStepProperties) Clone() StepProperties {
	return &ScriptStepProperties{
		Description:         eventsrc.ClonePtr(p.Description),
		IsSynchronous:       eventsrc.ClonePtr(p.IsSynchronous),
		ScriptURL:           eventsrc.ClonePtr(p.ScriptURL),
		ScriptArguments:     slices.Clone(p.ScriptArguments),
		TimeoutInSeconds:    eventsrc.ClonePtr(p.TimeoutInSeconds),
		ArgumentsSecretName: eventsrc.ClonePtr(p.ArgumentsSecretName),
	}
}

func (p *ScriptStepProperties) SecretNames() []string { return secretNames(p.ArgumentsSecretName) }

// ARMTemplateStepProperties deploy an ARM template.
type ARMTemplateStepProperties struct {
	Description          *string `json:"description,omitempty"`
	IsSynchronous        *bool   `json:"is_synchronous,omitempty"`
	TemplateURL          *string `json:"template_url,omitempty"`
	IsCompleteMode       *bool   `json:"is_complete_mode,omitempty"`
	ParametersSecretName *string `json:"parameters_secret_name,omitempty"`
	AzureSubscriptionID  *string `json:"azure_subscription_id,omitempty"`
}

func (p *ARMTemplateStepProperties) TypeTag() string { return TagARMTemplate }

func (p *ARMTemplateStepProperties) Merge(update StepProperties) error {
	u, ok := update.(*ARMTemplateStepProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.IsSynchronous, u.IsSynchronous)
	eventsrc.Overlay(&p.TemplateURL, u.TemplateURL)
	eventsrc.Overlay(&p.IsCompleteMode, u.IsCompleteMode)
	eventsrc.Overlay(&p.ParametersSecretName, u.ParametersSecretName)
	eventsrc.Overlay(&p.AzureSubscriptionID, u.AzureSubscriptionID)
	return nil
}

func (p *ARMTemplateStepProperties) Clone() StepProperties {
	return &ARMTemplateStepProperties{
		Description:          eventsrc.ClonePtr(p.Description),
		IsSynchronous:        eventsrc.ClonePtr(p.IsSynchronous),
		TemplateURL:          eventsrc.ClonePtr(p.TemplateURL),
		IsCompleteMode:       eventsrc.ClonePtr(p.IsCompleteMode),
		ParametersSecretName: eventsrc.ClonePtr(p.ParametersSecretName),
		AzureSubscriptionID:  eventsrc.ClonePtr(p.AzureSubscriptionID),
	}
}

func (p *ARMTemplateStepProperties) SecretNames() []string {
	return secretNames(p.ParametersSecretName)
}

// WebhookStepProperties call an external endpoint.
type WebhookStepProperties struct {
	Description       *string `json:"description,omitempty"`
	IsSynchronous     *bool   `json:"is_synchronous,omitempty"`
	WebhookURL        *string `json:"webhook_url,omitempty"`
	AuthKeySecretName *string `json:"auth_key_secret_name,omitempty"`
	TimeoutInSeconds  *int    `json:"timeout_in_seconds,omitempty"`
}

func (p *WebhookStepProperties) TypeTag() string { return TagWebhook }

func (p *WebhookStepProperties) Merge(update StepProperties) error {
	u, ok := update.(*WebhookStepProperties)
	if !ok {
		return typeMismatch(p, update)
	}
	eventsrc.Overlay(&p.Description, u.Description)
	eventsrc.Overlay(&p.IsSynchronous, u.IsSynchronous)
	eventsrc.Overlay(&p.WebhookURL, u.WebhookURL)
	eventsrc.Overlay(&p.AuthKeySecretName, u.AuthKeySecretName)
	eventsrc.Overlay(&p.TimeoutInSeconds, u.TimeoutInSeconds)
	return nil
}

func (p *WebhookStepProperties) Clone() StepProperties {
	return &WebhookStepProperties{
		Description:       eventsrc.ClonePtr(p.Description),
		IsSynchronous:     eventsrc.ClonePtr(p.IsSynchronous),
		WebhookURL:        eventsrc.ClonePtr(p.WebhookURL),
		AuthKeySecretName: eventsrc.ClonePtr(p.AuthKeySecretName),
		TimeoutInSeconds:  eventsrc.ClonePtr(p.TimeoutInSeconds),
	}
}

func (p *WebhookStepProperties) SecretNames() []string { return secretNames(p.AuthKeySecretName) }

func cloneStepProperties(p StepProperties) StepProperties {
	if p == nil {
		return nil
	}
	return p.Clone()
}
