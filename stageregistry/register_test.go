package stageregistry_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/stageregistry"
)

func TestRegister_AllBuiltins(t *testing.T) {
	r := stage.NewRegistry()
	require.NoError(t, stageregistry.Register(r))

	assert.Equal(t,
		[]string{"accumulate", "passthrough", "remove-oversampling", "scale"},
		r.List())

	for _, name := range r.List() {
		factory, err := r.Lookup(name)
		require.NoError(t, err)
		assert.Equal(t, name, factory().Name())
	}
}

func TestRegister_NilRegistry(t *testing.T) {
	assert.Error(t, stageregistry.Register(nil))
}

func TestRegister_Twice(t *testing.T) {
	r := stage.NewRegistry()
	require.NoError(t, stageregistry.Register(r))
	assert.Error(t, stageregistry.Register(r), "second registration collides on every name")
}
