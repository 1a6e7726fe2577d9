package conductor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noopComponent() Component {
	return ComponentFuncs{}
}

func TestRegisterAndGet(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&Descriptor{Name: "database", Factory: StaticFactory(noopComponent())})
	require.NoError(t, err)

	d, err := registry.Get("database")
	require.NoError(t, err)
	assert.Equal(t, "database", d.Name)
	assert.Equal(t, StatusRegistered, d.Status())
}

func TestRegisterDuplicateNameRejected(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(&Descriptor{Name: "cache", Factory: StaticFactory(noopComponent())}))

	err := registry.Register(&Descriptor{Name: "cache", Factory: StaticFactory(noopComponent())})
	require.ErrorIs(t, err, ErrComponentAlreadyRegistered)
	assert.Contains(t, err.Error(), "cache")

	// The original registration is untouched.
	assert.Equal(t, 1, registry.Len())
}

func TestRegisterValidation(t *testing.T) {
	registry := NewRegistry()

	err := registry.Register(&Descriptor{Factory: StaticFactory(noopComponent())})
	assert.ErrorIs(t, err, ErrComponentNameEmpty)

	err = registry.Register(&Descriptor{Name: "no-factory"})
	assert.ErrorIs(t, err, ErrComponentFactoryNil)
}

func TestGetUnknownComponent(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Get("ghost")
	require.ErrorIs(t, err, ErrComponentNotFound)
	assert.Contains(t, err.Error(), "ghost")
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	registry := NewRegistry()

	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, registry.Register(&Descriptor{Name: name, Factory: StaticFactory(noopComponent())}))
	}

	var names []string
	for _, d := range registry.List() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mid"}, names)
}

func TestComponentFuncsAdapter(t *testing.T) {
	started, stopped := false, false
	adapter := ComponentFuncs{
		StartFunc: func(context.Context) error { started = true; return nil },
		StopFunc:  func(context.Context) error { stopped = true; return nil },
	}

	require.NoError(t, adapter.Start(context.Background()))
	require.NoError(t, adapter.Stop(context.Background()))
	assert.True(t, started)
	assert.True(t, stopped)

	// Nil funcs are no-ops, not panics.
	empty := ComponentFuncs{}
	assert.NoError(t, empty.Start(context.Background()))
	assert.NoError(t, empty.Stop(context.Background()))
}

func TestDescriptorLazyConstruction(t *testing.T) {
	constructed := 0
	d := &Descriptor{
		Name: "lazy",
		Factory: func() (Component, error) {
			constructed++
			return noopComponent(), nil
		},
	}

	assert.Nil(t, d.currentInstance())
	assert.Equal(t, 0, constructed)

	first, err := d.component()
	require.NoError(t, err)
	second, err := d.component()
	require.NoError(t, err)
	assert.Equal(t, 1, constructed)
	assert.Equal(t, first, second)

	d.resetInstance()
	_, err = d.component()
	require.NoError(t, err)
	assert.Equal(t, 2, constructed)
}
