// Package registry keys every shared object in a session by name and keeps
// them in spawn order.
package registry

import (
	"errors"
	"fmt"

	"github.com/danmuck/peersync/internal/geom"
	"github.com/danmuck/peersync/internal/motion"
	"github.com/danmuck/peersync/internal/replica"
)

var (
	ErrDuplicateObject = errors.New("registry: duplicate object")
	ErrUnknownObject   = errors.New("registry: unknown object")
)

// Object is one networked object. Authoritative objects advance Motion;
// the others ease toward Replica.
type Object struct {
	Name         string
	Position     geom.Vec3
	Rotation     geom.Quat
	HasAuthority bool
	Effects      uint64

	Motion  motion.State
	Replica replica.Target
}

type Registry struct {
	order []*Object
	index map[string]*Object
}

func New() *Registry {
	return &Registry{index: make(map[string]*Object)}
}

// Insert registers obj under obj.Name. An existing entry is left untouched.
func (r *Registry) Insert(obj *Object) error {
	if obj == nil {
		return fmt.Errorf("%w: nil object", ErrUnknownObject)
	}
	if _, ok := r.index[obj.Name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicateObject, obj.Name)
	}
	r.index[obj.Name] = obj
	r.order = append(r.order, obj)
	return nil
}

func (r *Registry) Lookup(name string) (*Object, error) {
	obj, ok := r.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownObject, name)
	}
	return obj, nil
}

func (r *Registry) Len() int {
	return len(r.order)
}

// Each visits objects in insertion order until fn returns false.
func (r *Registry) Each(fn func(*Object) bool) {
	for _, obj := range r.order {
		if !fn(obj) {
			return
		}
	}
}

// AssignAuthority sets HasAuthority on every registered object.
func (r *Registry) AssignAuthority(authority bool) {
	for _, obj := range r.order {
		obj.HasAuthority = authority
	}
}

// FireEffect records one shared effect on every object.
func (r *Registry) FireEffect() {
	for _, obj := range r.order {
		obj.Effects++
	}
}

// Counts reports objects split by authority.
func (r *Registry) Counts() (authoritative, replicas int) {
	for _, obj := range r.order {
		if obj.HasAuthority {
			authoritative++
		} else {
			replicas++
		}
	}
	return authoritative, replicas
}
