package datatypes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDataRangeEqual(t *testing.T) {
	a := DataRange{Min: 0, Max: 100, Resolution: 1}
	b := DataRange{Min: 0, Max: 100, Resolution: 1}
	c := DataRange{Min: 0, Max: 100, Resolution: 0.5}

	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c), "resolution is part of range identity")
	assert.False(t, a.Equal(DataRange{Min: 0, Max: 200, Resolution: 1}))
}

func TestIntervalRangeContains(t *testing.T) {
	tests := []struct {
		name string
		ir   IntervalRange
		ms   int
		want bool
	}{
		{"inside", IntervalRange{Min: 10, Max: 1000}, 100, true},
		{"lower bound inclusive", IntervalRange{Min: 10, Max: 1000}, 10, true},
		{"upper bound inclusive", IntervalRange{Min: 10, Max: 1000}, 1000, true},
		{"below", IntervalRange{Min: 10, Max: 1000}, 9, false},
		{"above", IntervalRange{Min: 10, Max: 1000}, 1001, false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.ir.Contains(tc.ms))
		})
	}
}
