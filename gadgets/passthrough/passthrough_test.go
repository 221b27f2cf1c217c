package passthrough_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/casemr/gadgetron/gadgets/passthrough"
	"github.com/casemr/gadgetron/stage"
	"github.com/casemr/gadgetron/testutil"
)

func TestPassthrough_ForwardsUnchanged(t *testing.T) {
	g := passthrough.New()
	require.NoError(t, g.Configure(nil))

	m := testutil.Acquisition(3, 0, 8, 2)
	out, err := g.Process(m)
	require.NoError(t, err)
	assert.Same(t, m, out, "identity stage must forward the same message")
}

func TestPassthrough_Delay(t *testing.T) {
	g := passthrough.New()
	require.NoError(t, g.Configure(json.RawMessage(`{"delay_ms": 20}`)))

	start := time.Now()
	_, err := g.Process(testutil.Acquisition(0, 0, 2, 1))
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPassthrough_ConfigValidation(t *testing.T) {
	g := passthrough.New()
	assert.Error(t, g.Configure(json.RawMessage(`{"delay_ms": -1}`)))
	assert.Error(t, g.Configure(json.RawMessage(`not json`)))
	assert.NoError(t, g.Configure(json.RawMessage(`{}`)))
}

func TestPassthrough_Register(t *testing.T) {
	r := stage.NewRegistry()
	require.NoError(t, passthrough.Register(r))
	factory, err := r.Lookup(passthrough.Name)
	require.NoError(t, err)
	assert.Equal(t, passthrough.Name, factory().Name())
}
