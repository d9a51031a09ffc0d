package provider

import (
	"sync"

	"github.com/chimera-project/chimerad/internal/model"
	hclog "github.com/hashicorp/go-hclog"
)

// ProfileProvider holds profiles as configuration-only, in-memory records:
// profiles carry no host-side state of their own, they only supply the
// bodies the container provider renders at clone time.
type ProfileProvider struct {
	logger hclog.Logger

	mu       sync.RWMutex
	profiles map[string]model.Profile
}

// Init satisfies the Provider contract; profiles are loaded by the spec
// store, not the provider itself, so there's nothing to do here beyond
// preparing the map.
func (p *ProfileProvider) Init(_ *Registry) error {
	p.profiles = make(map[string]model.Profile)
	return nil
}

// Status reports present iff the profile has been registered.
func (p *ProfileProvider) Status(spec model.Profile) Status {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if _, ok := p.profiles[spec.Name]; ok {
		return StatusPresent
	}
	return StatusAbsent
}

// Present registers (or replaces) the profile record.
func (p *ProfileProvider) Present(spec model.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.profiles[spec.Name] = spec
	p.logger.Debug("registered profile", "name", spec.Name)
	return nil
}

// Absent unregisters the profile record, if present.
func (p *ProfileProvider) Absent(spec model.Profile) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.profiles, spec.Name)
	p.logger.Debug("unregistered profile", "name", spec.Name)
	return nil
}

// Validate enforces the "both bodies non-empty" invariant on top of whatever
// the spec store already checked at load time.
func (p *ProfileProvider) Validate(spec model.Profile) error {
	return spec.Validate()
}

// Get returns the registered profile by name, if any.
func (p *ProfileProvider) Get(name string) (model.Profile, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	prof, ok := p.profiles[name]
	return prof, ok
}
