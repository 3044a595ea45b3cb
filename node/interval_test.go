package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saukko/sensorfw/datatypes"
)

func TestEvaluateIntervalFastestWins(t *testing.T) {
	n := newAdaptor(t, "accelerometer adaptor")

	assert.Equal(t, datatypes.IntervalUnset, n.EvaluateInterval(),
		"no requesters means no effective interval")

	require.True(t, n.RequestInterval(1, 200))
	require.True(t, n.RequestInterval(2, 50))
	require.True(t, n.RequestInterval(3, 500))

	assert.Equal(t, 50, n.EvaluateInterval(), "the fastest requester sets the pace")

	n.ReleaseInterval(2)
	assert.Equal(t, 200, n.EvaluateInterval())

	n.ReleaseInterval(1)
	n.ReleaseInterval(3)
	assert.Equal(t, datatypes.IntervalUnset, n.EvaluateInterval())
}

func TestRequestIntervalReplacesEarlierRequest(t *testing.T) {
	n := newAdaptor(t, "accelerometer adaptor")

	require.True(t, n.RequestInterval(1, 100))
	require.True(t, n.RequestInterval(1, 400))

	assert.Equal(t, 400, n.EvaluateInterval(),
		"a session's later request replaces its earlier one")
}

func TestRequestIntervalOutOfBoundsDropped(t *testing.T) {
	n := newAdaptor(t, "accelerometer adaptor") // bounds 10..1000

	assert.False(t, n.RequestInterval(1, 5))
	assert.False(t, n.RequestInterval(1, 2000))
	assert.Equal(t, datatypes.IntervalUnset, n.EvaluateInterval())
}

func TestRequestIntervalForwarderEnforcesSourceBounds(t *testing.T) {
	adaptor := newAdaptor(t, "accelerometer adaptor") // bounds 10..1000
	sensor := newForwarder(t, "accelerometer sensor", adaptor)

	assert.False(t, sensor.RequestInterval(1, 5),
		"a forwarder enforces the bounds its chain reports")
	assert.False(t, sensor.RequestInterval(1, 2000))
	assert.Equal(t, datatypes.IntervalUnset, sensor.EvaluateInterval())
	assert.Equal(t, datatypes.IntervalUnset, adaptor.EvaluateInterval())

	require.True(t, sensor.RequestInterval(1, 100))
	assert.Equal(t, 100, sensor.EvaluateInterval())
}

func TestReleaseIntervalIdempotent(t *testing.T) {
	n := newAdaptor(t, "accelerometer adaptor")
	n.ReleaseInterval(42)
	assert.Equal(t, datatypes.IntervalUnset, n.EvaluateInterval())
}

func TestIntervalForwarding(t *testing.T) {
	adaptor := newAdaptor(t, "accelerometer adaptor")
	chain := newForwarder(t, "lowpass chain", adaptor)
	sensor := newForwarder(t, "accelerometer sensor", chain)

	// A request on the sensor propagates down to the adaptor.
	require.True(t, sensor.RequestInterval(1, 100))
	assert.Equal(t, 100, adaptor.EvaluateInterval())

	// A faster request directly on the chain wins everywhere downstream.
	require.True(t, chain.RequestInterval(2, 20))
	assert.Equal(t, 20, sensor.EvaluateInterval())
	assert.Equal(t, 20, adaptor.EvaluateInterval())

	sensor.ReleaseInterval(1)
	chain.ReleaseInterval(2)
	assert.Equal(t, datatypes.IntervalUnset, sensor.EvaluateInterval())
	assert.Equal(t, datatypes.IntervalUnset, adaptor.EvaluateInterval())
}

func TestAvailableIntervalRangeForwarded(t *testing.T) {
	adaptor := newAdaptor(t, "accelerometer adaptor")
	sensor := newForwarder(t, "accelerometer sensor", adaptor)

	bounds, ok := sensor.AvailableIntervalRange()
	require.True(t, ok)
	assert.Equal(t, datatypes.IntervalRange{Min: 10, Max: 1000}, bounds)

	orphan := New("orphan", nil)
	_, ok = orphan.AvailableIntervalRange()
	assert.False(t, ok)
}

// slowestMerge inverts the default policy, the way a node with hardware
// constraints might prefer the most relaxed requested rate.
type slowestMerge struct{}

func (slowestMerge) MergeIntervals(requests []int) int {
	if len(requests) == 0 {
		return datatypes.IntervalUnset
	}
	max := requests[0]
	for _, ms := range requests[1:] {
		if ms > max {
			max = ms
		}
	}
	return max
}

func TestSetIntervalMergePolicyOverride(t *testing.T) {
	n := newAdaptor(t, "accelerometer adaptor")
	n.SetIntervalMergePolicy(slowestMerge{})

	require.True(t, n.RequestInterval(1, 50))
	require.True(t, n.RequestInterval(2, 500))
	assert.Equal(t, 500, n.EvaluateInterval())

	// A nil policy restores the default fastest-wins merge.
	n.SetIntervalMergePolicy(nil)
	assert.Equal(t, 50, n.EvaluateInterval())
}
