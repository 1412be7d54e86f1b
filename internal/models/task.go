// Package models defines the records the escalation pipeline reads from the
// operational tables.
package models

import (
	"fmt"
	"time"
)

// NoneCategory is the category used for a missing categorical value, such as
// a task that was never escalated or a nurse without a user record.
const NoneCategory = "None"

// TaskType is the kind of nursing task.
type TaskType string

const (
	TaskTypeMedication TaskType = "medication"
	TaskTypeVitals     TaskType = "vitals"
	TaskTypeCharting   TaskType = "charting"
)

// TaskTypes lists every known task type.
var TaskTypes = []TaskType{TaskTypeMedication, TaskTypeVitals, TaskTypeCharting}

// ParseTaskType validates s as a task type.
func ParseTaskType(s string) (TaskType, error) {
	for _, t := range TaskTypes {
		if string(t) == s {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown task type %q", s)
}

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusEscalated TaskStatus = "escalated"
)

// ParseTaskStatus validates s as a task status.
func ParseTaskStatus(s string) (TaskStatus, error) {
	switch TaskStatus(s) {
	case TaskStatusPending, TaskStatusEscalated:
		return TaskStatus(s), nil
	}
	return "", fmt.Errorf("unknown task status %q", s)
}

// Task is a single nursing task. EscalationTo is the training label and is
// empty for tasks that were never escalated.
type Task struct {
	ID            int        `json:"task_id"`
	Type          TaskType   `json:"task_type"`
	Deadline      time.Time  `json:"deadline"`
	AssignedNurse string     `json:"assigned_nurse"`
	Status        TaskStatus `json:"status"`
	EscalationTo  string     `json:"escalation_to,omitempty"`
}

// EscalationTarget returns the label category for the task.
func (t Task) EscalationTarget() string {
	if t.EscalationTo == "" {
		return NoneCategory
	}
	return t.EscalationTo
}

// Rule is a free-text escalation policy statement. The pipeline never parses
// rule text; the thresholds it implies are fixed in the feature builder.
type Rule struct {
	ID   int    `json:"rule_id"`
	Text string `json:"rule_text"`
}
