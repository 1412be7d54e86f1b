package models

import "time"

func mustTime(s string) time.Time {
	t, err := ParseTimestamp(s)
	if err != nil {
		panic(err)
	}
	return t
}

// SampleUsers returns the six default staff members.
func SampleUsers() []User {
	return []User{
		{UserID: "Alice_Johnson", FirstName: "Alice", LastName: "Johnson", Role: RoleFloorNurse},
		{UserID: "Bob_Smith", FirstName: "Bob", LastName: "Smith", Role: RoleFloorNurse},
		{UserID: "Carol_Williams", FirstName: "Carol", LastName: "Williams", Role: RoleSupervisor},
		{UserID: "David_Brown", FirstName: "David", LastName: "Brown", Role: RoleChargeNurse},
		{UserID: "Eve_Davis", FirstName: "Eve", LastName: "Davis", Role: RoleFloorNurse},
		{UserID: "Frank_Miller", FirstName: "Frank", LastName: "Miller", Role: RoleFloorNurse},
	}
}

// SampleSchedules returns one shift per default staff member. Eve_Davis is
// unavailable.
func SampleSchedules() []Schedule {
	day := mustTime("2025-06-11")
	shift := func(user, start, end string, available bool) Schedule {
		return Schedule{
			UserID:     user,
			ShiftDate:  day,
			ShiftStart: mustTime(start),
			ShiftEnd:   mustTime(end),
			Available:  available,
		}
	}
	return []Schedule{
		shift("Alice_Johnson", "2025-06-11T08:00:00", "2025-06-11T16:00:00", true),
		shift("Bob_Smith", "2025-06-11T12:00:00", "2025-06-11T20:00:00", true),
		shift("Carol_Williams", "2025-06-11T16:00:00", "2025-06-12T00:00:00", true),
		shift("David_Brown", "2025-06-11T08:00:00", "2025-06-11T20:00:00", true),
		shift("Eve_Davis", "2025-06-11T10:00:00", "2025-06-11T18:00:00", false),
		shift("Frank_Miller", "2025-06-11T14:00:00", "2025-06-11T22:00:00", true),
	}
}

// SampleTasks returns the sixteen default tasks, due every five minutes from
// 17:00 UTC on 2025-06-11.
func SampleTasks() []Task {
	rows := []struct {
		typ    TaskType
		nurse  string
		status TaskStatus
		to     string
	}{
		{TaskTypeMedication, "Alice_Johnson", TaskStatusPending, ""},
		{TaskTypeVitals, "Bob_Smith", TaskStatusPending, ""},
		{TaskTypeCharting, "David_Brown", TaskStatusEscalated, "Carol_Williams"},
		{TaskTypeMedication, "Bob_Smith", TaskStatusEscalated, "David_Brown"},
		{TaskTypeVitals, "Alice_Johnson", TaskStatusEscalated, "Carol_Williams"},
		{TaskTypeCharting, "Carol_Williams", TaskStatusPending, ""},
		{TaskTypeMedication, "Eve_Davis", TaskStatusEscalated, "Carol_Williams"},
		{TaskTypeVitals, "David_Brown", TaskStatusEscalated, "David_Brown"},
		{TaskTypeCharting, "Alice_Johnson", TaskStatusPending, ""},
		{TaskTypeMedication, "Bob_Smith", TaskStatusEscalated, "Carol_Williams"},
		{TaskTypeVitals, "Frank_Miller", TaskStatusPending, ""},
		{TaskTypeCharting, "Eve_Davis", TaskStatusEscalated, "David_Brown"},
		{TaskTypeMedication, "Alice_Johnson", TaskStatusEscalated, "Carol_Williams"},
		{TaskTypeVitals, "Bob_Smith", TaskStatusEscalated, "David_Brown"},
		{TaskTypeCharting, "David_Brown", TaskStatusPending, ""},
		{TaskTypeMedication, "Carol_Williams", TaskStatusEscalated, "Carol_Williams"},
	}

	first := mustTime("2025-06-11T17:00:00")
	tasks := make([]Task, len(rows))
	for i, r := range rows {
		tasks[i] = Task{
			ID:            i + 1,
			Type:          r.typ,
			Deadline:      first.Add(time.Duration(i) * 5 * time.Minute),
			AssignedNurse: r.nurse,
			Status:        r.status,
			EscalationTo:  r.to,
		}
	}
	return tasks
}

// SampleRules returns the three escalation policies the derived features
// encode.
func SampleRules() []Rule {
	return []Rule{
		{ID: 1, Text: "If task is not completed in 2 minutes, escalate to the charge nurse"},
		{ID: 2, Text: "If nurse is unavailable, escalate to the supervisor"},
		{ID: 3, Text: "If task type is medication and not completed in 5 minutes, escalate to the charge nurse"},
	}
}
