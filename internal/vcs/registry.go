package vcs

import (
	"fmt"
	"sync"
)

// VCSConstructor creates a VCS instance for a given repo root.
// Implementations register themselves with the registry using Register().
type VCSConstructor func(repoRoot string) (VCS, error)

// registry maps VCS types to their constructors
var (
	registry      = make(map[Type]VCSConstructor)
	registryMutex sync.RWMutex
)

// Register registers a VCS implementation constructor.
// This is called from init() functions in implementation packages.
//
// Example:
//
//	func init() {
//	    vcs.Register(vcs.TypeGit, New)
//	}
func Register(t Type, constructor VCSConstructor) {
	registryMutex.Lock()
	defer registryMutex.Unlock()

	if constructor == nil {
		panic(fmt.Sprintf("vcs: Register constructor is nil for type %s", t))
	}

	if _, exists := registry[t]; exists {
		panic(fmt.Sprintf("vcs: Register called twice for type %s", t))
	}

	registry[t] = constructor
}

// constructorFor returns the constructor registered for t, or nil.
func constructorFor(t Type) VCSConstructor {
	registryMutex.RLock()
	defer registryMutex.RUnlock()
	return registry[t]
}

// Open detects the repository containing path and builds the registered
// implementation for it. The implementation package must be imported
// (usually blank) so its init() has registered a constructor.
func Open(path string) (VCS, error) {
	result, err := Detect(path)
	if err != nil {
		return nil, err
	}

	constructor := constructorFor(result.Type)
	if constructor == nil {
		return nil, fmt.Errorf("vcs: no implementation registered for %s: %w", result.Type, ErrVCSNotAvailable)
	}
	return constructor(result.RepoRoot)
}
