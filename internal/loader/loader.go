// Package loader resolves class identities by name.
//
// A ClassLoader is the shared, read-only collaborator a package and its
// dialect data are constructed with. Generated classes live in the dialect
// data, which acts as a child loader in front of the parent passed here.
package loader

import (
	"errors"
	"fmt"
	"sync"

	"github.com/roach88/rulepack/internal/ir"
)

// ErrClassNotFound is returned when no loader in a chain defines a class.
var ErrClassNotFound = errors.New("class not found")

// ClassLoader resolves a fully-qualified class name to its identity.
type ClassLoader interface {
	LoadClass(name string) (*ir.Class, error)
}

// NotFound wraps ErrClassNotFound with the class name.
func NotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrClassNotFound, name)
}

// Static is an in-memory class table.
// Safe for concurrent use: it is shared read-mostly across packages.
type Static struct {
	mu      sync.RWMutex
	classes map[string]*ir.Class
}

// NewStatic creates a loader that defines the given classes.
func NewStatic(classes ...*ir.Class) *Static {
	s := &Static{classes: make(map[string]*ir.Class, len(classes))}
	for _, c := range classes {
		s.classes[c.Name] = c
	}
	return s
}

// Define adds or replaces a class.
func (s *Static) Define(c *ir.Class) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes[c.Name] = c
}

// LoadClass implements ClassLoader.
func (s *Static) LoadClass(name string) (*ir.Class, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.classes[name]; ok {
		return c, nil
	}
	return nil, NotFound(name)
}

var system = NewStatic()

// System returns the process-wide default loader.
// Packages constructed without a parent loader delegate to it.
func System() *Static {
	return system
}

// chain is a child-first delegating loader.
type chain struct {
	child  ClassLoader
	parent ClassLoader
}

// Chain returns a loader that consults child first, then parent.
// A nil parent makes Chain return child unchanged.
func Chain(child, parent ClassLoader) ClassLoader {
	if parent == nil {
		return child
	}
	return &chain{child: child, parent: parent}
}

func (c *chain) LoadClass(name string) (*ir.Class, error) {
	cls, err := c.child.LoadClass(name)
	if err == nil {
		return cls, nil
	}
	if !errors.Is(err, ErrClassNotFound) {
		return nil, err
	}
	return c.parent.LoadClass(name)
}
