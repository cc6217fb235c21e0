// Package marketplace reconstructs marketplace offers, their plans,
// parameters and provisioning steps from the marketplace event log.
package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/0m3kk/lunafold/eventsrc"
	"github.com/0m3kk/lunafold/secrets"
)

// Kind is the aggregate kind of offers.
const Kind eventsrc.AggregateKind = "offer"

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
	StatusDeleted   Status = "Deleted"
)

// Offer is the aggregate root.
type Offer struct {
	ID                string             `json:"id" validate:"required"`
	Status            Status             `json:"status" validate:"required,oneof=Draft Published Deleted"`
	Properties        OfferProperties    `json:"properties"`
	Plans             []Plan             `json:"plans" validate:"dive"`
	Parameters        []Parameter        `json:"parameters" validate:"dive"`
	ProvisioningSteps []ProvisioningStep `json:"provisioning_steps" validate:"dive"`
}

type Plan struct {
	ID         string         `json:"id" validate:"required"`
	Properties PlanProperties `json:"properties"`
}

type Parameter struct {
	Name       string              `json:"name" validate:"required"`
	Properties ParameterProperties `json:"properties"`
}

type ProvisioningStep struct {
	Name       string         `json:"name" validate:"required"`
	Properties StepProperties `json:"properties" validate:"required"`
}

func (s ProvisioningStep) MarshalJSON() ([]byte, error) {
	props, err := stepPropertiesTypes.Encode(s.Properties)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", s.Name, err)
	}
	type alias ProvisioningStep
	return json.Marshal(&struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias:      (*alias)(&s),
		Properties: props,
	})
}

func (s *ProvisioningStep) UnmarshalJSON(data []byte) error {
	type alias ProvisioningStep
	aux := &struct {
		*alias
		Properties json.RawMessage `json:"properties"`
	}{
		alias: (*alias)(s),
	}
	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}
	props, err := stepPropertiesTypes.Decode(aux.Properties)
	if err != nil {
		return err
	}
	s.Properties = props
	return nil
}

func planID(p *Plan) string               { return p.ID }
func parameterName(p *Parameter) string   { return p.Name }
func stepName(s *ProvisioningStep) string { return s.Name }

// Clone returns a deep copy of the offer.
func (o *Offer) Clone() *Offer {
	if o == nil {
		return nil
	}
	out := &Offer{
		ID:         o.ID,
		Status:     o.Status,
		Properties: o.Properties.Clone(),
	}
	if o.Plans != nil {
		out.Plans = make([]Plan, len(o.Plans))
		for i, p := range o.Plans {
			out.Plans[i] = Plan{ID: p.ID, Properties: p.Properties.Clone()}
		}
	}
	if o.Parameters != nil {
		out.Parameters = make([]Parameter, len(o.Parameters))
		for i, p := range o.Parameters {
			out.Parameters[i] = Parameter{Name: p.Name, Properties: p.Properties.Clone()}
		}
	}
	if o.ProvisioningSteps != nil {
		out.ProvisioningSteps = make([]ProvisioningStep, len(o.ProvisioningSteps))
		for i, s := range o.ProvisioningSteps {
			out.ProvisioningSteps[i] = ProvisioningStep{Name: s.Name, Properties: cloneStepProperties(s.Properties)}
		}
	}
	return out
}

// ResolveStepSecrets looks up every secret referenced by the offer's
// provisioning steps. The result maps secret name to value.
func ResolveStepSecrets(ctx context.Context, offer *Offer, store secrets.Store) (map[string]string, error) {
	if offer == nil {
		return map[string]string{}, nil
	}
	var names []string
	for _, step := range offer.ProvisioningSteps {
		if step.Properties == nil {
			continue
		}
		names = append(names, step.Properties.SecretNames()...)
	}
	slices.Sort(names)
	names = slices.Compact(names)

	resolved := make(map[string]string, len(names))
	for _, name := range names {
		value, err := store.Get(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve secret %s for offer %s: %w", name, offer.ID, err)
		}
		resolved[name] = value
	}
	return resolved, nil
}
