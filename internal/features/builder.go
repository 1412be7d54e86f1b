package features

import (
	"fmt"
	"time"

	"github.com/raphaelgruber/escalate-go/internal/dataset"
	"github.com/raphaelgruber/escalate-go/internal/models"
)

// Lateness thresholds implied by the escalation rules.
const (
	LateThreshold           = 2.0 // minutes, any task
	MedicationLateThreshold = 5.0 // minutes, medication tasks
)

// FeatureNames is the column order of every feature matrix. Persisted
// scalers and selectors depend on it.
var FeatureNames = []string{
	"task_type",
	"deadline_hour",
	"assigned_nurse",
	"shift_start_hour",
	"shift_end_hour",
	"availability",
	"nurse_unavailable",
	"deadline_missed",
	"task_type_medication",
	"task_type_vitals",
	"task_type_charting",
	"missed_2min",
	"missed_5min",
	"is_floor_nurse",
	"is_supervisor",
	"is_charge_nurse",
	"role",
	"full_name",
}

// FeatureRow is the derived, encoded view of one task.
type FeatureRow struct {
	TaskID int

	TaskType           int
	DeadlineHour       int
	AssignedNurse      int
	ShiftStartHour     int
	ShiftEndHour       int
	Availability       bool
	NurseUnavailable   bool
	DeadlineMissed     bool
	TaskTypeMedication bool
	TaskTypeVitals     bool
	TaskTypeCharting   bool
	Missed2Min         bool
	Missed5Min         bool
	IsFloorNurse       bool
	IsSupervisor       bool
	IsChargeNurse      bool
	Role               int
	FullName           int

	// MinutesSinceDeadline is negative for deadlines after the evaluation
	// instant. It is not a model input.
	MinutesSinceDeadline float64

	Label int
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Values returns the row's features in FeatureNames order.
func (r FeatureRow) Values() []float64 {
	return []float64{
		float64(r.TaskType),
		float64(r.DeadlineHour),
		float64(r.AssignedNurse),
		float64(r.ShiftStartHour),
		float64(r.ShiftEndHour),
		b2f(r.Availability),
		b2f(r.NurseUnavailable),
		b2f(r.DeadlineMissed),
		b2f(r.TaskTypeMedication),
		b2f(r.TaskTypeVitals),
		b2f(r.TaskTypeCharting),
		b2f(r.Missed2Min),
		b2f(r.Missed5Min),
		b2f(r.IsFloorNurse),
		b2f(r.IsSupervisor),
		b2f(r.IsChargeNurse),
		float64(r.Role),
		float64(r.FullName),
	}
}

// Matrix is the encoded feature table for one run.
type Matrix struct {
	Rows     []FeatureRow
	Universe *Universe
}

// Partition returns the rows in the label-first partition layout.
func (m *Matrix) Partition() *dataset.Partition {
	p := &dataset.Partition{
		Labels:   make([]int, len(m.Rows)),
		Features: make([][]float64, len(m.Rows)),
	}
	for i, r := range m.Rows {
		p.Labels[i] = r.Label
		p.Features[i] = r.Values()
	}
	return p
}

// joined is a task with its left-joined schedule and user.
type joined struct {
	task     models.Task
	schedule *models.Schedule
	user     *models.User
}

func (j joined) role() string {
	if j.user == nil || j.user.Role == "" {
		return models.NoneCategory
	}
	return string(j.user.Role)
}

func (j joined) fullName() string {
	if j.user == nil {
		return models.NoneCategory
	}
	return j.user.FullName()
}

// Builder derives feature rows. Now is the evaluation instant every
// lateness feature is measured against; it is fixed for the whole run.
type Builder struct {
	Now time.Time
}

// NewBuilder returns a builder evaluating lateness at now.
func NewBuilder(now time.Time) *Builder {
	return &Builder{Now: now.UTC()}
}

// Build joins the tables, fits a fresh category universe on the joined
// values and encodes every task. Schedule and user rows are matched on staff
// identity only; the first row per staff member wins. Inputs are not
// modified.
func (b *Builder) Build(tasks []models.Task, schedules []models.Schedule, users []models.User) (*Matrix, error) {
	rows, err := b.join(tasks, schedules, users)
	if err != nil {
		return nil, err
	}

	values := make(map[Column][]string, len(Columns))
	for _, j := range rows {
		values[ColumnTaskType] = append(values[ColumnTaskType], string(j.task.Type))
		values[ColumnStaff] = append(values[ColumnStaff], j.task.AssignedNurse)
		values[ColumnRole] = append(values[ColumnRole], j.role())
		values[ColumnFullName] = append(values[ColumnFullName], j.fullName())
		values[ColumnTarget] = append(values[ColumnTarget], j.task.EscalationTarget())
	}

	return b.encode(rows, NewUniverse(values), true)
}

// BuildWithUniverse encodes tasks with an existing universe, as done when
// scoring tasks against a stored model. Feature values outside the universe
// fail with ErrUnknownCategory; an unknown escalation target yields label -1.
func (b *Builder) BuildWithUniverse(tasks []models.Task, schedules []models.Schedule, users []models.User, u *Universe) (*Matrix, error) {
	rows, err := b.join(tasks, schedules, users)
	if err != nil {
		return nil, err
	}
	return b.encode(rows, u, false)
}

func (b *Builder) join(tasks []models.Task, schedules []models.Schedule, users []models.User) ([]joined, error) {
	if len(tasks) == 0 {
		return nil, fmt.Errorf("%w: task table has 0 rows", ErrEmptyInput)
	}

	scheduleByStaff := make(map[string]*models.Schedule, len(schedules))
	for i := range schedules {
		if _, ok := scheduleByStaff[schedules[i].UserID]; !ok {
			scheduleByStaff[schedules[i].UserID] = &schedules[i]
		}
	}
	userByStaff := make(map[string]*models.User, len(users))
	for i := range users {
		if _, ok := userByStaff[users[i].UserID]; !ok {
			userByStaff[users[i].UserID] = &users[i]
		}
	}

	rows := make([]joined, len(tasks))
	for i, t := range tasks {
		rows[i] = joined{
			task:     t,
			schedule: scheduleByStaff[t.AssignedNurse],
			user:     userByStaff[t.AssignedNurse],
		}
	}
	return rows, nil
}

func (b *Builder) encode(rows []joined, u *Universe, labelRequired bool) (*Matrix, error) {
	m := &Matrix{Rows: make([]FeatureRow, 0, len(rows)), Universe: u}
	for _, j := range rows {
		row, err := b.derive(j, u, labelRequired)
		if err != nil {
			return nil, fmt.Errorf("task %d: %w", j.task.ID, err)
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

func (b *Builder) derive(j joined, u *Universe, labelRequired bool) (FeatureRow, error) {
	t := j.task
	minutes := b.Now.Sub(t.Deadline).Minutes()

	row := FeatureRow{
		TaskID:               t.ID,
		DeadlineHour:         t.Deadline.UTC().Hour(),
		DeadlineMissed:       t.Deadline.Before(b.Now),
		TaskTypeMedication:   t.Type == models.TaskTypeMedication,
		TaskTypeVitals:       t.Type == models.TaskTypeVitals,
		TaskTypeCharting:     t.Type == models.TaskTypeCharting,
		Missed2Min:           minutes > LateThreshold,
		Missed5Min:           minutes > MedicationLateThreshold,
		MinutesSinceDeadline: minutes,
	}

	if s := j.schedule; s != nil {
		row.ShiftStartHour = s.ShiftStart.UTC().Hour()
		row.ShiftEndHour = s.ShiftEnd.UTC().Hour()
		row.Availability = s.Available
		row.NurseUnavailable = !s.Available
	}
	if usr := j.user; usr != nil {
		row.IsFloorNurse = usr.Role == models.RoleFloorNurse
		row.IsSupervisor = usr.Role == models.RoleSupervisor
		row.IsChargeNurse = usr.Role == models.RoleChargeNurse
	}

	var err error
	if row.TaskType, err = u.Encode(ColumnTaskType, string(t.Type)); err != nil {
		return row, err
	}
	if row.AssignedNurse, err = u.Encode(ColumnStaff, t.AssignedNurse); err != nil {
		return row, err
	}
	if row.Role, err = u.Encode(ColumnRole, j.role()); err != nil {
		return row, err
	}
	if row.FullName, err = u.Encode(ColumnFullName, j.fullName()); err != nil {
		return row, err
	}
	if row.Label, err = u.Encode(ColumnTarget, t.EscalationTarget()); err != nil {
		if labelRequired {
			return row, err
		}
		row.Label = -1
	}
	return row, nil
}
