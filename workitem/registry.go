package workitem

import (
	"sort"
	"sync"

	"github.com/vasont/Foundatio/serializer"
)

// PayloadType is a registered discriminator with its decoder.
type PayloadType struct {
	name   string
	decode func(ser serializer.Serializer, data []byte) (any, error)
}

// Name returns the discriminator.
func (p *PayloadType) Name() string { return p.name }

// Decode turns encoded payload bytes into the registered Go type. Empty
// data decodes to the zero value.
func (p *PayloadType) Decode(ser serializer.Serializer, data []byte) (any, error) {
	return p.decode(ser, data)
}

// TypeResolver maps discriminators to payload types.
type TypeResolver interface {
	ResolveType(name string) (*PayloadType, bool)
}

// HandlerLookup maps payload types to handlers.
type HandlerLookup interface {
	GetHandler(pt *PayloadType) (Handler, bool)
}

// Registry is both TypeResolver and HandlerLookup. Populate it at startup;
// lookups afterwards only take the read lock.
type Registry struct {
	mu       sync.RWMutex
	types    map[string]*PayloadType
	handlers map[*PayloadType]Handler
}

// Compile-time checks.
var (
	_ TypeResolver  = (*Registry)(nil)
	_ HandlerLookup = (*Registry)(nil)
)

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		types:    make(map[string]*PayloadType),
		handlers: make(map[*PayloadType]Handler),
	}
}

// RegisterType registers T under name without a handler and returns its
// PayloadType. Registering a name again returns the existing type.
//
// This is a package-level generic function because Go does not allow
// generic methods on non-generic receiver types.
func RegisterType[T any](r *Registry, name string) *PayloadType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.registerTypeLocked(name, func(ser serializer.Serializer, data []byte) (any, error) {
		var t T
		if len(data) > 0 {
			if err := ser.Unmarshal(data, &t); err != nil {
				return nil, err
			}
		}
		return t, nil
	})
}

func (r *Registry) registerTypeLocked(name string, decode func(serializer.Serializer, []byte) (any, error)) *PayloadType {
	if pt, ok := r.types[name]; ok {
		pt.decode = decode
		return pt
	}
	pt := &PayloadType{name: name, decode: decode}
	r.types[name] = pt
	return pt
}

// Register registers def's payload type under def.Name() and binds def as
// its handler, replacing any previous handler.
func Register[T any](r *Registry, def *Definition[T]) *PayloadType {
	pt := RegisterType[T](r, def.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[pt] = def
	return pt
}

// RegisterHandler binds h to an already registered payload type.
func (r *Registry) RegisterHandler(pt *PayloadType, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[pt] = h
}

// ResolveType implements TypeResolver.
func (r *Registry) ResolveType(name string) (*PayloadType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pt, ok := r.types[name]
	return pt, ok
}

// GetHandler implements HandlerLookup.
func (r *Registry) GetHandler(pt *PayloadType) (Handler, bool) {
	if pt == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[pt]
	return h, ok
}

// Names returns every registered discriminator, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
