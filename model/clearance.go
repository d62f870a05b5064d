package model

import (
	"github.com/google/uuid"
)

// UserClearance holds the access attributes of a user. It is loaded once per
// request and read-only for the duration of a retrieval call.
type UserClearance struct {
	UserID          uuid.UUID     `json:"user_id"`
	OrgLevel        SecurityLevel `json:"org_level"`
	DepartmentLevel SecurityLevel `json:"department_level,omitempty"` // 0 when the user holds no department role
	DepartmentID    string        `json:"department_id,omitempty"`
	IsAdmin         bool          `json:"is_admin"`
}

// CanAccess reports whether the user may see the given passage.
//
// A passage is visible iff its security level does not exceed the user's
// organization level and, for department-restricted passages, the user
// belongs to the same department with a sufficient department level.
// Admins bypass both checks.
func (u *UserClearance) CanAccess(p *PassageCandidate) bool {
	if u.IsAdmin {
		return true
	}
	if p.SecurityLevel > u.OrgLevel {
		return false
	}
	if !p.DepartmentRestricted {
		return true
	}
	return u.DepartmentID != "" &&
		u.DepartmentID == p.DepartmentID &&
		u.DepartmentLevel >= p.SecurityLevel
}
