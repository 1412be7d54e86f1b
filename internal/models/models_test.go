package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want time.Time
	}{
		{"naive", "2025-06-11T17:00:00", time.Date(2025, 6, 11, 17, 0, 0, 0, time.UTC)},
		{"space separated", "2025-06-11 17:05:00", time.Date(2025, 6, 11, 17, 5, 0, 0, time.UTC)},
		{"with zone", "2025-06-11T19:00:00+02:00", time.Date(2025, 6, 11, 17, 0, 0, 0, time.UTC)},
		{"date only", "2025-06-11", time.Date(2025, 6, 11, 0, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			require.NoError(t, err)
			assert.True(t, got.Equal(tt.want), "got %v, want %v", got, tt.want)
			assert.Equal(t, time.UTC, got.Location())
		})
	}

	_, err := ParseTimestamp("yesterday")
	assert.Error(t, err)
}

func TestParseEnums(t *testing.T) {
	typ, err := ParseTaskType("vitals")
	require.NoError(t, err)
	assert.Equal(t, TaskTypeVitals, typ)
	_, err = ParseTaskType("surgery")
	assert.Error(t, err)

	role, err := ParseRole("charge_nurse")
	require.NoError(t, err)
	assert.Equal(t, RoleChargeNurse, role)
	_, err = ParseRole("doctor")
	assert.Error(t, err)

	_, err = ParseTaskStatus("done")
	assert.Error(t, err)
}

func TestEscalationTarget(t *testing.T) {
	assert.Equal(t, NoneCategory, Task{}.EscalationTarget())
	assert.Equal(t, "David_Brown", Task{EscalationTo: "David_Brown"}.EscalationTarget())
}

func TestSampleData(t *testing.T) {
	tasks := SampleTasks()
	require.Len(t, tasks, 16)
	assert.Len(t, SampleUsers(), 6)
	assert.Len(t, SampleSchedules(), 6)
	assert.Len(t, SampleRules(), 3)

	assert.Equal(t, 4, tasks[3].ID)
	assert.Equal(t, time.Date(2025, 6, 11, 17, 15, 0, 0, time.UTC), tasks[3].Deadline)
	assert.Equal(t, time.Date(2025, 6, 11, 18, 15, 0, 0, time.UTC), tasks[15].Deadline)
}
