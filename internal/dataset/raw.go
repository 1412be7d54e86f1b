package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/raphaelgruber/escalate-go/internal/models"
)

// Table names, as used in errors and object keys.
const (
	TableTasks     = "tasks"
	TableSchedules = "schedules"
	TableUsers     = "users"
	TableRules     = "rules"
)

// Required columns per raw table. Extra columns are ignored.
var (
	TaskColumns     = []string{"task_id", "task_type", "deadline", "assigned_nurse", "status", "escalation_to"}
	ScheduleColumns = []string{"user_id", "shift_start", "shift_end", "availability"}
	UserColumns     = []string{"user_id", "first_name", "last_name", "role"}
	RuleColumns     = []string{"rule_id", "rule_text"}
)

// table is a decoded CSV with a header index.
type table struct {
	name   string
	index  map[string]int
	rows   [][]string
	header []string
}

func (t *table) get(row []string, column string) string {
	i, ok := t.index[column]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// readTable decodes a headed CSV and checks that every required column is
// present.
func readTable(r io.Reader, name string, required []string) (*table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &SchemaError{Table: name, Column: required[0]}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}

	t := &table{name: name, index: make(map[string]int, len(header)), header: header}
	for i, col := range header {
		t.index[strings.TrimSpace(col)] = i
	}
	for _, col := range required {
		if _, ok := t.index[col]; !ok {
			return nil, &SchemaError{Table: name, Column: col}
		}
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s rows: %w", name, err)
	}
	t.rows = rows
	return t, nil
}

// ReadTasks decodes the task table.
func ReadTasks(r io.Reader) ([]models.Task, error) {
	t, err := readTable(r, TableTasks, TaskColumns)
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(t.rows))
	tasks := make([]models.Task, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		id, err := strconv.Atoi(t.get(row, "task_id"))
		if err != nil {
			return nil, rowError(TableTasks, n, "task_id", err)
		}
		if seen[id] {
			return nil, rowError(TableTasks, n, "task_id", fmt.Errorf("duplicate id %d", id))
		}
		seen[id] = true

		typ, err := models.ParseTaskType(t.get(row, "task_type"))
		if err != nil {
			return nil, rowError(TableTasks, n, "task_type", err)
		}
		deadline, err := models.ParseTimestamp(t.get(row, "deadline"))
		if err != nil {
			return nil, rowError(TableTasks, n, "deadline", err)
		}
		status, err := models.ParseTaskStatus(t.get(row, "status"))
		if err != nil {
			return nil, rowError(TableTasks, n, "status", err)
		}

		tasks = append(tasks, models.Task{
			ID:            id,
			Type:          typ,
			Deadline:      deadline,
			AssignedNurse: t.get(row, "assigned_nurse"),
			Status:        status,
			EscalationTo:  t.get(row, "escalation_to"),
		})
	}
	return tasks, nil
}

// ReadSchedules decodes the schedule table. shift_date is optional.
func ReadSchedules(r io.Reader) ([]models.Schedule, error) {
	t, err := readTable(r, TableSchedules, ScheduleColumns)
	if err != nil {
		return nil, err
	}

	schedules := make([]models.Schedule, 0, len(t.rows))
	for i, row := range t.rows {
		n := i + 1
		s := models.Schedule{UserID: t.get(row, "user_id")}
		if v := t.get(row, "shift_date"); v != "" {
			if s.ShiftDate, err = models.ParseTimestamp(v); err != nil {
				return nil, rowError(TableSchedules, n, "shift_date", err)
			}
		}
		if s.ShiftStart, err = models.ParseTimestamp(t.get(row, "shift_start")); err != nil {
			return nil, rowError(TableSchedules, n, "shift_start", err)
		}
		if s.ShiftEnd, err = models.ParseTimestamp(t.get(row, "shift_end")); err != nil {
			return nil, rowError(TableSchedules, n, "shift_end", err)
		}
		if s.Available, err = models.ParseAvailability(t.get(row, "availability")); err != nil {
			return nil, rowError(TableSchedules, n, "availability", err)
		}
		schedules = append(schedules, s)
	}
	return schedules, nil
}

// ReadUsers decodes the user table.
func ReadUsers(r io.Reader) ([]models.User, error) {
	t, err := readTable(r, TableUsers, UserColumns)
	if err != nil {
		return nil, err
	}

	users := make([]models.User, 0, len(t.rows))
	for i, row := range t.rows {
		role, err := models.ParseRole(t.get(row, "role"))
		if err != nil {
			return nil, rowError(TableUsers, i+1, "role", err)
		}
		users = append(users, models.User{
			UserID:    t.get(row, "user_id"),
			FirstName: t.get(row, "first_name"),
			LastName:  t.get(row, "last_name"),
			Role:      role,
		})
	}
	return users, nil
}

// ReadRules decodes the rule table.
func ReadRules(r io.Reader) ([]models.Rule, error) {
	t, err := readTable(r, TableRules, RuleColumns)
	if err != nil {
		return nil, err
	}

	rules := make([]models.Rule, 0, len(t.rows))
	for i, row := range t.rows {
		id, err := strconv.Atoi(t.get(row, "rule_id"))
		if err != nil {
			return nil, rowError(TableRules, i+1, "rule_id", err)
		}
		rules = append(rules, models.Rule{ID: id, Text: t.get(row, "rule_text")})
	}
	return rules, nil
}

func writeRecords(w io.Writer, header []string, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

// WriteTasks encodes tasks with a header row.
func WriteTasks(w io.Writer, tasks []models.Task) error {
	records := make([][]string, len(tasks))
	for i, t := range tasks {
		records[i] = []string{
			strconv.Itoa(t.ID),
			string(t.Type),
			t.Deadline.UTC().Format(models.TimestampLayout),
			t.AssignedNurse,
			string(t.Status),
			t.EscalationTo,
		}
	}
	return writeRecords(w, TaskColumns, records)
}

// WriteSchedules encodes schedules with a header row, availability as 1/0.
func WriteSchedules(w io.Writer, schedules []models.Schedule) error {
	header := []string{"user_id", "shift_date", "shift_start", "shift_end", "availability"}
	records := make([][]string, len(schedules))
	for i, s := range schedules {
		avail := "0"
		if s.Available {
			avail = "1"
		}
		date := ""
		if !s.ShiftDate.IsZero() {
			date = s.ShiftDate.UTC().Format(models.DateLayout)
		}
		records[i] = []string{
			s.UserID,
			date,
			s.ShiftStart.UTC().Format(models.TimestampLayout),
			s.ShiftEnd.UTC().Format(models.TimestampLayout),
			avail,
		}
	}
	return writeRecords(w, header, records)
}

// WriteUsers encodes users with a header row.
func WriteUsers(w io.Writer, users []models.User) error {
	records := make([][]string, len(users))
	for i, u := range users {
		records[i] = []string{u.UserID, u.FirstName, u.LastName, string(u.Role)}
	}
	return writeRecords(w, UserColumns, records)
}

// WriteRules encodes rules with a header row.
func WriteRules(w io.Writer, rules []models.Rule) error {
	records := make([][]string, len(rules))
	for i, r := range rules {
		records[i] = []string{strconv.Itoa(r.ID), r.Text}
	}
	return writeRecords(w, RuleColumns, records)
}
