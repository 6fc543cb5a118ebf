package transform

import (
	"sort"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"flowcore/pkg/flowerr"
)

// DefaultConstantCacheSize bounds the number of solved logicle parameter
// sets a Registry keeps.
const DefaultConstantCacheSize = 128

// Factory builds a transform from parameters. Missing parameters take the
// factory's defaults.
type Factory func(params map[string]float64) (Transform, error)

// Registry maps transform names to factories. Each registry owns its logicle
// constant cache; there is no package-level state.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	constants *lru.Cache[BiexParams, LogicleConstants]
}

// RegistryOption configures NewRegistry.
type RegistryOption func(*registryConfig)

type registryConfig struct {
	cacheSize int
}

// WithConstantCacheSize sets the logicle constant cache capacity.
func WithConstantCacheSize(n int) RegistryOption {
	return func(c *registryConfig) {
		if n > 0 {
			c.cacheSize = n
		}
	}
}

// NewRegistry returns a registry with the built-in transforms registered:
// log, asinh, linear, logicle and hyperlog.
func NewRegistry(opts ...RegistryOption) *Registry {
	cfg := registryConfig{cacheSize: DefaultConstantCacheSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	cache, err := lru.New[BiexParams, LogicleConstants](cfg.cacheSize)
	if err != nil {
		// only fails for a non-positive size, which the option rejects
		panic(err)
	}
	r := &Registry{factories: make(map[string]Factory), constants: cache}
	r.factories["log"] = func(p map[string]float64) (Transform, error) {
		return NewLog(param(p, "base", 10), param(p, "floor", 1))
	}
	r.factories["asinh"] = func(p map[string]float64) (Transform, error) {
		return NewAsinh(param(p, "c", 150))
	}
	r.factories["linear"] = func(p map[string]float64) (Transform, error) {
		return NewLinear(param(p, "bottom", 0), param(p, "top", 262144))
	}
	r.factories["logicle"] = func(p map[string]float64) (Transform, error) {
		return r.logicle(biexFromParams(p))
	}
	r.factories["hyperlog"] = func(p map[string]float64) (Transform, error) {
		return NewHyperlog(biexFromParams(p))
	}
	return r
}

func (r *Registry) logicle(p BiexParams) (Transform, error) {
	if k, ok := r.constants.Get(p); ok {
		return NewLogicleWithConstants(p, k), nil
	}
	k, err := SolveLogicle(p)
	if err != nil {
		return nil, err
	}
	r.constants.Add(p, k)
	return NewLogicleWithConstants(p, k), nil
}

// CachedConstants reports how many logicle parameter sets are cached.
func (r *Registry) CachedConstants() int { return r.constants.Len() }

// Register adds a factory under name. Names are unique; "chain" is reserved.
func (r *Registry) Register(name string, f Factory) error {
	if name == "" || f == nil {
		return flowerr.Newf("transform registration needs a name and a factory")
	}
	if name == "chain" {
		return flowerr.Newf("transform name %q is reserved", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.factories[name]; dup {
		return flowerr.Newf("transform %q is already registered", name)
	}
	r.factories[name] = f
	return nil
}

// Build constructs the transform s describes.
func (r *Registry) Build(s Spec) (Transform, error) {
	if s.Name == "chain" {
		steps := make([]Transform, len(s.Steps))
		for i, st := range s.Steps {
			t, err := r.Build(st)
			if err != nil {
				return nil, flowerr.Wrapf(err, "chain step %d", i)
			}
			steps[i] = t
		}
		return Chain(steps...)
	}
	r.mu.RLock()
	f, ok := r.factories[s.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, flowerr.Domainf("unknown transform %q", s.Name)
	}
	return f(s.Params)
}

// Names lists registered transform names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for n := range r.factories {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
