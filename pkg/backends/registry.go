package backends

import (
	"sort"
	"sync"

	"github.com/go-go-golems/synthgen/pkg/settings"
	"github.com/pkg/errors"
)

type Capabilities struct {
	// StrictAlternation means the provider rejects two consecutive messages with the same role.
	StrictAlternation bool
	// NeedsCredential means every call must carry a secret from the credential pool.
	NeedsCredential bool
}

// Factory builds a backend from its settings. name is the key under `backends:`.
type Factory func(name string, bs *settings.BackendSettings, gen *settings.GenerationSettings) (Backend, error)

type registration struct {
	factory      Factory
	capabilities Capabilities
}

// Registry maps api types to adapter factories.
type Registry struct {
	mu      sync.RWMutex
	entries map[settings.ApiType]registration
}

func NewRegistry() *Registry {
	return &Registry{entries: map[settings.ApiType]registration{}}
}

func (r *Registry) Register(t settings.ApiType, f Factory, c Capabilities) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[t] = registration{factory: f, capabilities: c}
}

func (r *Registry) Capabilities(t settings.ApiType) (Capabilities, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[t]
	return e.capabilities, ok
}

func (r *Registry) Types() []settings.ApiType {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ret := make([]settings.ApiType, 0, len(r.entries))
	for t := range r.entries {
		ret = append(ret, t)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i] < ret[j] })
	return ret
}

// Instance is a ready-to-use backend together with what the rest of the
// pipeline needs to know about it.
type Instance struct {
	Name         string
	Type         settings.ApiType
	Backend      Backend
	Capabilities Capabilities
	// Credentials is the ordered pool. Backends that need no secret get a single empty credential.
	Credentials []string
	RateLimits  settings.RateLimits
}

// Create builds the backend selected in s.
func (r *Registry) Create(s *settings.Settings) (*Instance, error) {
	bs, err := s.SelectedBackend()
	if err != nil {
		return nil, err
	}

	r.mu.RLock()
	e, ok := r.entries[bs.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(settings.ErrInvalidConfig, "no adapter for api type %q", bs.Type)
	}

	credentials := bs.ResolvedCredentials()
	if len(credentials) == 0 {
		if e.capabilities.NeedsCredential {
			source := "credentials"
			if bs.CredentialsEnv != "" {
				source = bs.CredentialsEnv
			}
			return nil, errors.Wrapf(settings.ErrInvalidConfig, "backend %s has no credentials (set %s)", s.Backend, source)
		}
		credentials = []string{""}
	}

	b, err := e.factory(s.Backend, bs, s.Generation)
	if err != nil {
		return nil, errors.Wrapf(err, "could not create backend %s", s.Backend)
	}

	return &Instance{
		Name:         s.Backend,
		Type:         bs.Type,
		Backend:      b,
		Capabilities: e.capabilities,
		Credentials:  credentials,
		RateLimits:   bs.RateLimits,
	}, nil
}
