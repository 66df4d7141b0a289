package sampler

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSamplePositions(t *testing.T) {
	// The nominal case: every 10th of 100 frames
	require.Equal(t, []int{0, 10, 20, 30, 40, 50, 60, 70, 80, 90}, SamplePositions(100, 10))

	// Short clip: one sample per frame, never past the end
	require.Equal(t, []int{0, 1, 2}, SamplePositions(3, 10))

	// Long video still yields the requested sample count
	positions := SamplePositions(100000, 10)
	require.Len(t, positions, 10)
	require.Equal(t, 0, positions[0])
	require.Less(t, positions[9], 100000)

	require.Nil(t, SamplePositions(0, 10))
	require.Nil(t, SamplePositions(100, 0))
}
