package index

import (
	"fmt"
	"os"
	"strings"
)

// Preference selects how a Factory chooses its backend.
type Preference string

const (
	// PreferAuto picks the exact backend when the build has it, else flat.
	PreferAuto Preference = "auto"
	// PreferExact requires the exact backend.
	PreferExact Preference = "exact"
	// PreferFlat always uses the flat backend.
	PreferFlat Preference = "flat"
)

// Factory builds indexes of a single backend. The backend is chosen in
// NewFactory and never re-evaluated.
type Factory struct {
	backend Backend
	build   func(dim int) (Index, error)
}

// NewFactory resolves pref against the capabilities of this build.
func NewFactory(pref Preference) (*Factory, error) {
	switch Preference(strings.ToLower(string(pref))) {
	case "", PreferAuto:
		if exactAvailable {
			return &Factory{backend: BackendExact, build: newExact}, nil
		}
		return flatFactory(), nil
	case PreferExact:
		if !exactAvailable {
			return nil, ErrExactUnavailable
		}
		return &Factory{backend: BackendExact, build: newExact}, nil
	case PreferFlat:
		return flatFactory(), nil
	default:
		return nil, fmt.Errorf("index: unknown backend %q: valid values: auto, exact, flat", pref)
	}
}

// NewFactoryFromEnv reads INDEX_BACKEND (auto | exact | flat, default auto).
func NewFactoryFromEnv() (*Factory, error) {
	return NewFactory(Preference(os.Getenv("INDEX_BACKEND")))
}

func flatFactory() *Factory {
	return &Factory{
		backend: BackendFlat,
		build:   func(dim int) (Index, error) { return NewFlat(dim) },
	}
}

// Backend returns the backend every index from this factory uses.
func (f *Factory) Backend() Backend { return f.backend }

// New returns an empty index of the factory's backend for vectors of
// length dim. Size dim from the embedding provider, never a constant.
func (f *Factory) New(dim int) (Index, error) {
	idx, err := f.build(dim)
	if err != nil {
		return nil, fmt.Errorf("index: new %s index: %w", f.backend, err)
	}
	return idx, nil
}
