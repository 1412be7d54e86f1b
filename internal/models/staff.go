package models

import (
	"fmt"
	"time"
)

// Role is a staff role.
type Role string

const (
	RoleFloorNurse  Role = "floor_nurse"
	RoleSupervisor  Role = "supervisor"
	RoleChargeNurse Role = "charge_nurse"
)

// ParseRole validates s as a staff role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleFloorNurse, RoleSupervisor, RoleChargeNurse:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// User is a staff member.
type User struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      Role   `json:"role"`
}

// FullName returns "first last".
func (u User) FullName() string {
	return u.FirstName + " " + u.LastName
}

// Schedule is one shift of a staff member.
type Schedule struct {
	UserID     string    `json:"user_id"`
	ShiftDate  time.Time `json:"shift_date"`
	ShiftStart time.Time `json:"shift_start"`
	ShiftEnd   time.Time `json:"shift_end"`
	Available  bool      `json:"availability"`
}
