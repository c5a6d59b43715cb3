// Package tooladapter provides the reference tool adapters dispatched
// after an allow verdict or a redeemed approval: in-memory payments
// and file stores that stand in for whatever real backend a Warden
// deployment actually fronts.
package tooladapter

import "fmt"

// Adapter performs one (tool, action) operation against params and
// returns a JSON-serializable result, or an error. Errors are never
// shown to callers verbatim; the gateway surface maps any adapter
// error to a generic failure response.
type Adapter func(params map[string]interface{}) (map[string]interface{}, error)

// Registry maps (tool, action) pairs to their Adapter.
type Registry struct {
	adapters map[string]map[string]Adapter
}

// NewRegistry returns a Registry seeded with the built-in payments and
// files adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]map[string]Adapter)}
	r.Register("payments", "create", CreatePayment)
	r.Register("payments", "refund", RefundPayment)
	r.Register("files", "read", ReadFile)
	r.Register("files", "write", WriteFile)
	return r
}

// Register adds or replaces the adapter for (tool, action).
func (r *Registry) Register(tool, action string, adapter Adapter) {
	if r.adapters[tool] == nil {
		r.adapters[tool] = make(map[string]Adapter)
	}
	r.adapters[tool][action] = adapter
}

// Lookup returns the adapter for (tool, action) and whether one is
// registered.
func (r *Registry) Lookup(tool, action string) (Adapter, bool) {
	byAction, ok := r.adapters[tool]
	if !ok {
		return nil, false
	}
	adapter, ok := byAction[action]
	return adapter, ok
}

// requireFields returns an error naming the first missing key from
// fields that is absent in params.
func requireFields(params map[string]interface{}, fields ...string) error {
	for _, f := range fields {
		if _, ok := params[f]; !ok {
			return fmt.Errorf("missing required field: %s", f)
		}
	}
	return nil
}
