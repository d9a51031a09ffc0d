// Package provider implements one provider per declared resource kind
// (Image, Container, CloudInit, Profile). Every provider exposes status,
// present, and absent against the host, plus whatever validation is cheaper
// done locally than by the upstream schema validator.
package provider

import "fmt"

// Status is the observed state of a resource against the host, independent
// of what the catalog declares it should be.
type Status string

const (
	StatusPresent Status = "present"
	StatusAbsent  Status = "absent"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

// Provider is the subset of the provider contract the registry needs to
// perform two-phase construction: construct every provider first, then
// initialize each one, handing it a registry handle so it can resolve peer
// providers without a constructor cycle.
type Provider interface {
	// Init is called exactly once, after every provider has been
	// constructed and registered. It may call the registry's accessors
	// (Image, Container, CloudInit, Profile) to look up a peer provider;
	// doing so during construction would be a cycle.
	Init(registry *Registry) error
}

// NotFoundError reports a reference to a resource the catalog doesn't have.
type NotFoundError struct {
	Kind string
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q: not found", e.Kind, e.Name)
}

// InvalidError reports a resource that failed validation (a dangling
// reference, a missing invariant).
type InvalidError struct {
	Kind   string
	Name   string
	Reason string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("%s %q: invalid: %s", e.Kind, e.Name, e.Reason)
}
