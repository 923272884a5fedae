package models

import (
	"gorm.io/gorm"
)

// UserRole represents the role of a user on the training platform
type UserRole string

const (
	RoleStudent       UserRole = "STUDENT"
	RoleSupervisor    UserRole = "SUPERVISOR"
	RoleMedicalExpert UserRole = "MEDICAL_EXPERT"
	RoleAdmin         UserRole = "ADMIN"
	RoleObserver      UserRole = "OBSERVER"
)

// IsSupervisory reports whether the role may oversee other users' sessions.
func (r UserRole) IsSupervisory() bool {
	return r == RoleSupervisor || r == RoleMedicalExpert || r == RoleAdmin
}

// User represents a user in the system
type User struct {
	ID        string   `json:"id" gorm:"primaryKey"`
	Username  string   `json:"username" gorm:"unique;not null"`
	Password  string   `json:"-" gorm:"not null"`
	Role      UserRole `json:"role" gorm:"not null;default:'STUDENT'"`
	FirstName string   `json:"firstName" gorm:"column:first_name"`
	LastName  string   `json:"lastName" gorm:"column:last_name"`
	gorm.Model
}

// TableName specifies the table name for User Model
func (User) TableName() string {
	return "users"
}
