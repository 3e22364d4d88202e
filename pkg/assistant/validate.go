package assistant

import (
	"errors"
	"fmt"
)

// Validation errors. All of them are configuration errors: they fail the
// assistant load and are never surfaced mid-conversation.
var (
	// ErrDuplicateSlot is returned when two slots share a name.
	ErrDuplicateSlot = errors.New("duplicate slot declaration")
	// ErrDuplicateIntent is returned when two intents share a name.
	ErrDuplicateIntent = errors.New("duplicate intent declaration")
	// ErrDuplicateStep is returned when a policy declares two steps with
	// the same ID.
	ErrDuplicateStep = errors.New("duplicate step declaration")
	// ErrAmbiguousIntentPolicy is returned when two policies declare the
	// same intent.
	ErrAmbiguousIntentPolicy = errors.New("intent declared by multiple policies")
	// ErrUnknownIntent is returned when a policy declares an intent the
	// assistant does not define.
	ErrUnknownIntent = errors.New("policy references undeclared intent")
	// ErrUndeclaredAction is returned when a step references an action
	// outside its policy's action set.
	ErrUndeclaredAction = errors.New("step references undeclared action")
	// ErrInvalidPolicy is returned for malformed policy declarations.
	ErrInvalidPolicy = errors.New("invalid policy declaration")
)

// Validate checks the structural invariants of the definition. It does
// not verify that declared actions exist in the runtime registry; use
// ValidateActions for that once the registry is built.
func (d *Definition) Validate() error {
	slots := make(map[string]struct{}, len(d.Slots))
	for _, s := range d.Slots {
		if s.Name == "" {
			return fmt.Errorf("%w: empty slot name", ErrDuplicateSlot)
		}
		if _, ok := slots[s.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateSlot, s.Name)
		}
		slots[s.Name] = struct{}{}
	}

	intents := make(map[string]struct{}, len(d.Intents))
	for _, it := range d.Intents {
		if _, ok := intents[it.Name]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateIntent, it.Name)
		}
		intents[it.Name] = struct{}{}
	}

	claimed := make(map[string]string) // intent -> policy name
	for i := range d.Policies {
		p := &d.Policies[i]
		if err := p.validate(); err != nil {
			return err
		}
		for _, intent := range p.Intents {
			if _, ok := intents[intent]; !ok {
				return fmt.Errorf("%w: policy %q declares %q", ErrUnknownIntent, p.Name, intent)
			}
			if owner, ok := claimed[intent]; ok {
				return fmt.Errorf("%w: %q claimed by %q and %q",
					ErrAmbiguousIntentPolicy, intent, owner, p.Name)
			}
			claimed[intent] = p.Name
		}
	}

	return nil
}

func (p *PolicyConfig) validate() error {
	switch p.Type {
	case PolicyQuickReply:
		if p.Message == "" {
			return fmt.Errorf("%w: quick-reply policy %q has no message", ErrInvalidPolicy, p.Name)
		}
	case PolicyStandard:
		if len(p.Actions) == 0 {
			return fmt.Errorf("%w: standard policy %q declares no actions", ErrInvalidPolicy, p.Name)
		}
	case PolicyStepBased:
		if len(p.Steps) == 0 {
			return fmt.Errorf("%w: step-based policy %q declares no steps", ErrInvalidPolicy, p.Name)
		}
		declared := make(map[string]struct{}, len(p.Actions))
		for _, a := range p.Actions {
			declared[a] = struct{}{}
		}
		stepIDs := make(map[string]struct{}, len(p.Steps))
		for _, step := range p.Steps {
			if _, ok := stepIDs[step.ID]; ok {
				return fmt.Errorf("%w: %q in policy %q", ErrDuplicateStep, step.ID, p.Name)
			}
			stepIDs[step.ID] = struct{}{}
			for _, a := range step.Actions {
				if _, ok := declared[a]; !ok {
					return fmt.Errorf("%w: step %q uses %q", ErrUndeclaredAction, step.ID, a)
				}
			}
		}
	default:
		return fmt.Errorf("%w: unknown type %q for policy %q", ErrInvalidPolicy, p.Type, p.Name)
	}
	return nil
}

// ValidateActions verifies that every action declared by any policy is
// known to the runtime. exists reports whether an action name is
// registered.
func (d *Definition) ValidateActions(exists func(string) bool) error {
	for i := range d.Policies {
		p := &d.Policies[i]
		for _, a := range p.Actions {
			if !exists(a) {
				return fmt.Errorf("%w: policy %q declares unregistered action %q",
					ErrUndeclaredAction, p.Name, a)
			}
		}
	}
	return nil
}
