package tasks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallel-quest/internal/compute"
)

func TestComputeRunTask_PayloadRoundTrip(t *testing.T) {
	params := compute.DefaultParams()
	params.Mode = compute.ModeConcurrent

	task, err := NewComputeRunTask("job-1", params)
	require.NoError(t, err)
	assert.Equal(t, TypeComputeRun, task.Type())

	got, err := ParseComputeRunPayload(task)
	require.NoError(t, err)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, params, got.Params)
}

func TestRoomSyncCleanupTask(t *testing.T) {
	assert.Equal(t, TypeRoomSyncCleanup, NewRoomSyncCleanupTask().Type())
}
