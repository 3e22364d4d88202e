package policy

import (
	"fmt"
)

// Dispatcher routes a session intent to the single policy claiming it.
// Routing is resolved at construction; lookups never race.
type Dispatcher struct {
	byIntent map[string]Policy
	catchAll Policy
}

// NewDispatcher builds the routing table. Overlapping intent claims
// and multiple catch-all policies are configuration errors.
func NewDispatcher(policies []Policy) (*Dispatcher, error) {
	d := &Dispatcher{byIntent: make(map[string]Policy)}

	for _, p := range policies {
		intents := p.Intents()
		if len(intents) == 0 {
			if d.catchAll != nil {
				return nil, fmt.Errorf("%w: policies %q and %q both claim all intents",
					ErrAmbiguousIntentPolicy, d.catchAll.Name(), p.Name())
			}
			d.catchAll = p
			continue
		}
		for _, intent := range intents {
			if prev, exists := d.byIntent[intent]; exists {
				return nil, fmt.Errorf("%w: %q claimed by %q and %q",
					ErrAmbiguousIntentPolicy, intent, prev.Name(), p.Name())
			}
			d.byIntent[intent] = p
		}
	}
	return d, nil
}

// ForIntent returns the policy claiming the intent, falling back to
// the catch-all when one is configured.
func (d *Dispatcher) ForIntent(intent string) (Policy, error) {
	if p, ok := d.byIntent[intent]; ok {
		return p, nil
	}
	if d.catchAll != nil {
		return d.catchAll, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrNoPolicyForIntent, intent)
}

// Policies returns every registered policy, catch-all last.
func (d *Dispatcher) Policies() []Policy {
	seen := make(map[string]bool)
	var out []Policy
	for _, p := range d.byIntent {
		if !seen[p.Name()] {
			seen[p.Name()] = true
			out = append(out, p)
		}
	}
	if d.catchAll != nil && !seen[d.catchAll.Name()] {
		out = append(out, d.catchAll)
	}
	return out
}
