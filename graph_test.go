package conductor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func descriptorsFor(t *testing.T, deps map[string][]string, order []string) []*Descriptor {
	t.Helper()
	result := make([]*Descriptor, 0, len(order))
	for _, name := range order {
		result = append(result, &Descriptor{
			Name:         name,
			Factory:      StaticFactory(noopComponent()),
			Dependencies: deps[name],
		})
	}
	return result
}

func TestBuildSequenceOrdersDependenciesFirst(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"api":   {"database", "cache"},
		"cache": {"database"},
	}, []string{"api", "cache", "database"})

	sequence, err := BuildSequence(descriptors)
	require.NoError(t, err)
	assert.Equal(t, []string{"database", "cache", "api"}, sequence)
}

func TestBuildSequenceIsDeterministic(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"b": {"shared"},
		"c": {"shared"},
	}, []string{"b", "c", "shared", "a"})

	first, err := BuildSequence(descriptors)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := BuildSequence(descriptors)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// Independent components come out in registration order.
	assert.Equal(t, []string{"shared", "b", "c", "a"}, first)
}

func TestBuildSequenceDiamondDependency(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"top":   {"left", "right"},
		"left":  {"base"},
		"right": {"base"},
	}, []string{"top", "left", "right", "base"})

	sequence, err := BuildSequence(descriptors)
	require.NoError(t, err)

	assert.Equal(t, []string{"base", "left", "right", "top"}, sequence)
}

func TestBuildSequenceUnknownDependency(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"api": {"ghost"},
	}, []string{"api"})

	_, err := BuildSequence(descriptors)
	require.ErrorIs(t, err, ErrUnknownDependency)
	assert.Contains(t, err.Error(), "api")
	assert.Contains(t, err.Error(), "ghost")
}

func TestBuildSequenceCycleNamesAllMembers(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
	}, []string{"a", "b", "c"})

	_, err := BuildSequence(descriptors)
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "a -> b -> c -> a")
}

func TestBuildSequenceSelfDependency(t *testing.T) {
	descriptors := descriptorsFor(t, map[string][]string{
		"loop": {"loop"},
	}, []string{"loop"})

	_, err := BuildSequence(descriptors)
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "loop -> loop")
}

func TestBuildSequenceCycleBehindChain(t *testing.T) {
	// The cycle error names only the components on the cycle, not the
	// chain that led into it.
	descriptors := descriptorsFor(t, map[string][]string{
		"entry": {"x"},
		"x":     {"y"},
		"y":     {"x"},
	}, []string{"entry", "x", "y"})

	_, err := BuildSequence(descriptors)
	require.ErrorIs(t, err, ErrCircularDependency)
	assert.Contains(t, err.Error(), "x -> y -> x")
	assert.NotContains(t, err.Error(), "entry")
}

func TestBuildSequenceEmpty(t *testing.T) {
	sequence, err := BuildSequence(nil)
	require.NoError(t, err)
	assert.Empty(t, sequence)
}

func TestShutdownSequenceIsExactReverse(t *testing.T) {
	startup := []string{"database", "cache", "api"}
	assert.Equal(t, []string{"api", "cache", "database"}, ShutdownSequence(startup))

	// Derivation does not mutate its input.
	assert.Equal(t, []string{"database", "cache", "api"}, startup)
}
