// Package compiler defines the read-only compiler catalog consumed by
// internal/session: the CompilerTrait data model and a Registry lookup
// interface. Loading traits from disk is internal/catalog's concern.
package compiler

import "fmt"

// Switch is a named bundle of argv fragments activated by membership of
// its key in a CompilerOption request's comma-separated set.
type Switch struct {
	Flags []string
}

// ResourceLimits bounds a child process spawned for this trait. A zero
// value for any field means "no limit imposed" (see internal/rlimit).
type ResourceLimits struct {
	CPUSeconds  uint64
	MemoryBytes uint64
	MaxOpenFDs  uint64
}

// CompilerTrait is one entry of the compiler catalog, immutable for the
// lifetime of any session that references it.
type CompilerTrait struct {
	Name        string
	Language    string
	DisplayName string

	CompileCommand []string
	RunCommand     []string
	SourceSuffix   string

	VersionCommand []string
	Displayable    bool

	// Switches maps switch name to its flags. Declaration order matters
	// for argv assembly, so Registry implementations must also expose
	// SwitchOrder.
	Switches    map[string]Switch
	SwitchOrder []string

	Limits ResourceLimits
}

// ErrRegistryMiss is returned by Registry.Lookup when name is unknown.
type ErrRegistryMiss struct {
	Name string
}

func (e *ErrRegistryMiss) Error() string {
	return fmt.Sprintf("compiler: unknown name %q", e.Name)
}

// Registry is a read-only lookup table, safe for concurrent use by any
// number of sessions.
type Registry interface {
	// Lookup returns the trait for name, or *ErrRegistryMiss if unknown.
	Lookup(name string) (CompilerTrait, error)
	// Displayable returns every trait with Displayable set, for the
	// Version branch's listing.
	Displayable() []CompilerTrait
}

// StaticRegistry is an in-memory Registry backed by a fixed map, built
// once (by internal/catalog) and swapped wholesale on reload.
type StaticRegistry struct {
	traits map[string]CompilerTrait
}

// NewStaticRegistry builds a registry from a slice of traits, keyed by
// their Name. Later entries with a duplicate name overwrite earlier ones.
func NewStaticRegistry(traits []CompilerTrait) *StaticRegistry {
	m := make(map[string]CompilerTrait, len(traits))
	for _, t := range traits {
		m[t.Name] = t
	}
	return &StaticRegistry{traits: m}
}

func (r *StaticRegistry) Lookup(name string) (CompilerTrait, error) {
	t, ok := r.traits[name]
	if !ok {
		return CompilerTrait{}, &ErrRegistryMiss{Name: name}
	}
	return t, nil
}

func (r *StaticRegistry) Displayable() []CompilerTrait {
	out := make([]CompilerTrait, 0, len(r.traits))
	for _, t := range r.traits {
		if t.Displayable {
			out = append(out, t)
		}
	}
	return out
}
