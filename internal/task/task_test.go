package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTask(t *testing.T) {
	tsk := NewTask("deploy docs", "push the docs branch")

	assert.Equal(t, "deploy docs", tsk.Title)
	assert.Equal(t, "push the docs branch", tsk.Body)
	assert.Equal(t, StatusQueued, tsk.Status)
	assert.False(t, tsk.CreatedAt.IsZero())
	assert.Zero(t, tsk.ID)
}

func TestTaskJSONRoundTrip(t *testing.T) {
	tsk := NewTask("roundtrip", "")
	tsk.ID = 1042
	tsk.Status = StatusRunning

	data, err := tsk.ToJSON()
	require.NoError(t, err)

	parsed, err := FromJSON(data)
	require.NoError(t, err)

	assert.Equal(t, tsk.ID, parsed.ID)
	assert.Equal(t, tsk.Title, parsed.Title)
	assert.Equal(t, StatusRunning, parsed.Status)
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON("{not json")
	assert.Error(t, err)
}

func TestStatusTerminal(t *testing.T) {
	tests := []struct {
		status   Status
		terminal bool
	}{
		{StatusQueued, false},
		{StatusRunning, false},
		{StatusSuccess, true},
		{StatusFailed, true},
		{StatusCancelled, true},
		{StatusUnknown, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.terminal, tt.status.Terminal())
		})
	}
}
