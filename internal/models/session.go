package models

import (
	"time"

	"gorm.io/gorm"

	"simulation-training-api/internal/lifecycle"
)

// SimSession represents a running (or finished) instance of a scenario.
// Lifecycle status and cumulative time totals are persisted here; the live
// virtual clock itself is held in memory by the simtime package.
type SimSession struct {
	ID           string           `json:"id" gorm:"primaryKey"`
	ScenarioID   string           `json:"scenarioId" gorm:"column:scenario_id;not null;index"`
	StudentID    string           `json:"studentId" gorm:"column:student_id;not null;index"`
	SupervisorID string           `json:"supervisorId" gorm:"column:supervisor_id;index"`
	Status       lifecycle.Status `json:"status" gorm:"not null;default:'DRAFT'"`

	StartTime               *time.Time `json:"startTime" gorm:"column:start_time"`
	EndTime                 *time.Time `json:"endTime" gorm:"column:end_time"`
	TotalVirtualTimeElapsed float64    `json:"totalVirtualTimeElapsed" gorm:"column:total_virtual_time_elapsed"` // minutes
	TotalRealTimeElapsed    int        `json:"totalRealTimeElapsed" gorm:"column:total_real_time_elapsed"`       // seconds
	gorm.Model
}

// TableName specifies the table name for SimSession Model
func (SimSession) TableName() string {
	return "sim_sessions"
}
