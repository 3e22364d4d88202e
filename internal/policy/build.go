package policy

import (
	"fmt"

	"github.com/dyzsasd/tomo/internal/action"
	"github.com/dyzsasd/tomo/internal/predict"
	"github.com/dyzsasd/tomo/internal/workflow"
	"github.com/dyzsasd/tomo/pkg/assistant"
)

// Build wires the assistant's policy definitions into a dispatcher.
// Action specs come from the registry, so every policy action must be
// registered before Build runs.
func Build(def *assistant.Definition, reg *action.Registry, predictor predict.Predictor) (*Dispatcher, error) {
	policies := make([]Policy, 0, len(def.Policies))

	for i := range def.Policies {
		cfg := &def.Policies[i]

		switch cfg.Type {
		case assistant.PolicyQuickReply:
			policies = append(policies, NewQuickReply(cfg.Name, cfg.Message, cfg.Intents))

		case assistant.PolicyStandard:
			specs, err := specsFor(reg, cfg.Actions)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", cfg.Name, err)
			}
			policies = append(policies, NewStandard(cfg.Name, cfg.Scope, cfg.Intents, specs, predictor))

		case assistant.PolicyStepBased:
			specs, err := specsFor(reg, cfg.Actions)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", cfg.Name, err)
			}
			engine, err := workflow.NewEngine(cfg, specs, predictor)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", cfg.Name, err)
			}
			policies = append(policies, NewStepBased(cfg.Name, cfg.Intents, engine))

		default:
			return nil, fmt.Errorf("policy %s: unknown type %q", cfg.Name, cfg.Type)
		}
	}

	return NewDispatcher(policies)
}

func specsFor(reg *action.Registry, names []string) ([]predict.ActionSpec, error) {
	specs := make([]predict.ActionSpec, 0, len(names))
	for _, name := range names {
		a, err := reg.Get(name)
		if err != nil {
			return nil, err
		}
		specs = append(specs, predict.ActionSpec{
			Name:          a.Name,
			Description:   a.Description,
			RequiredSlots: a.RequiredSlots,
		})
	}
	return specs, nil
}
