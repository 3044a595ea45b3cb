package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saukko/sensorfw/datatypes"
	"github.com/saukko/sensorfw/errors"
)

func TestGraphAddValidatesMetadata(t *testing.T) {
	g := NewGraph()

	broken := New("broken", nil) // neither authoritative nor forwarder
	err := g.Add("broken", broken)
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
	_, ok := g.Node("broken")
	assert.False(t, ok, "a rejected node must not enter service")

	good := newAdaptor(t, "adaptor")
	require.NoError(t, g.Add("adaptor", good))
	got, ok := g.Node("adaptor")
	require.True(t, ok)
	assert.Same(t, good, got)
}

func TestGraphRejectsDuplicateName(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.Add("adaptor", newAdaptor(t, "first")))

	err := g.Add("adaptor", newAdaptor(t, "second"))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDuplicateNode)
}

func TestGraphValidateAcceptsDAG(t *testing.T) {
	g := NewGraph()
	adaptor := newAdaptor(t, "adaptor")
	chain := newForwarder(t, "chain", adaptor)
	sensorA := newForwarder(t, "sensor A", chain)
	sensorB := newForwarder(t, "sensor B", chain) // shared branch

	require.NoError(t, g.Add("adaptor", adaptor))
	require.NoError(t, g.Add("chain", chain))
	require.NoError(t, g.Add("sensor-a", sensorA))
	require.NoError(t, g.Add("sensor-b", sensorB))

	assert.NoError(t, g.Validate())
	assert.ElementsMatch(t, []string{"adaptor", "chain", "sensor-a", "sensor-b"}, g.Names())
}

func TestGraphValidateRejectsCycle(t *testing.T) {
	g := NewGraph()

	a := New("a", nil)
	a.IntroduceAvailableRange(datatypes.DataRange{Min: 0, Max: 1, Resolution: 1})
	a.IntroduceAvailableInterval(datatypes.IntervalRange{Min: 1, Max: 100})
	b := newForwarder(t, "b", a)

	// Close the loop through a standby forwarding link.
	a.AddStandbyOverrideSource(b)

	require.NoError(t, g.Add("a", a))
	require.NoError(t, g.Add("b", b))

	err := g.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrCyclicForwarding)
	assert.True(t, errors.IsFatal(err))
}
