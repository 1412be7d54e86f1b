package features

import (
	"encoding/json"
	"fmt"
	"slices"
)

// Column names a categorical column.
type Column string

const (
	ColumnTaskType Column = "task_type"
	ColumnStaff    Column = "assigned_nurse"
	ColumnRole     Column = "role"
	ColumnFullName Column = "full_name"
	ColumnTarget   Column = "escalation_to"
)

// Columns lists every categorical column in encoding order.
var Columns = []Column{ColumnTaskType, ColumnStaff, ColumnRole, ColumnFullName, ColumnTarget}

// Universe maps each categorical column's distinct values to dense integer
// codes. Codes are positions in the sorted value list, so a universe built
// from the same values always encodes the same way. It is built once per run
// and shared by label and feature encoding.
type Universe struct {
	categories map[Column][]string
	index      map[Column]map[string]int
}

// NewUniverse builds a universe from the observed values of each column.
func NewUniverse(values map[Column][]string) *Universe {
	u := &Universe{
		categories: make(map[Column][]string, len(values)),
		index:      make(map[Column]map[string]int, len(values)),
	}
	for col, vs := range values {
		sorted := slices.Clone(vs)
		slices.Sort(sorted)
		sorted = slices.Compact(sorted)
		u.set(col, sorted)
	}
	return u
}

func (u *Universe) set(col Column, sorted []string) {
	u.categories[col] = sorted
	idx := make(map[string]int, len(sorted))
	for i, v := range sorted {
		idx[v] = i
	}
	u.index[col] = idx
}

// Encode returns the code of value in col.
func (u *Universe) Encode(col Column, value string) (int, error) {
	code, ok := u.index[col][value]
	if !ok {
		return 0, fmt.Errorf("%w: %s=%q", ErrUnknownCategory, col, value)
	}
	return code, nil
}

// Decode returns the value behind code in col.
func (u *Universe) Decode(col Column, code int) (string, error) {
	cats := u.categories[col]
	if code < 0 || code >= len(cats) {
		return "", fmt.Errorf("%w: %s code %d", ErrUnknownCategory, col, code)
	}
	return cats[code], nil
}

// Categories returns the sorted values of col.
func (u *Universe) Categories(col Column) []string {
	return slices.Clone(u.categories[col])
}

// Size returns the number of categories in col.
func (u *Universe) Size(col Column) int {
	return len(u.categories[col])
}

// MarshalJSON encodes the universe as column -> sorted values.
func (u *Universe) MarshalJSON() ([]byte, error) {
	return json.Marshal(u.categories)
}

// UnmarshalJSON restores a universe written by MarshalJSON.
func (u *Universe) UnmarshalJSON(data []byte) error {
	var cats map[Column][]string
	if err := json.Unmarshal(data, &cats); err != nil {
		return err
	}
	*u = *NewUniverse(cats)
	return nil
}
