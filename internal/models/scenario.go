package models

import (
	"gorm.io/gorm"
)

// ScenarioDifficulty represents the difficulty grade of a scenario
type ScenarioDifficulty string

const (
	DifficultyBeginner     ScenarioDifficulty = "beginner"
	DifficultyIntermediate ScenarioDifficulty = "intermediate"
	DifficultyAdvanced     ScenarioDifficulty = "advanced"
)

// Scenario represents an authored training scenario. Only the fields the
// session clock consumes are modeled here; medical content lives elsewhere.
type Scenario struct {
	ID                   string             `json:"id" gorm:"primaryKey"`
	Title                string             `json:"title" gorm:"not null"`
	Description          string             `json:"description"`
	Difficulty           ScenarioDifficulty `json:"difficulty" gorm:"default:'beginner'"`
	Specialty            string             `json:"specialty"`
	EstimatedDuration    int                `json:"estimatedDuration" gorm:"column:estimated_duration"`
	TimeAccelerationRate float64            `json:"timeAccelerationRate" gorm:"column:time_acceleration_rate;not null;default:1"`
	CreatedBy            string             `json:"createdBy" gorm:"column:created_by;index"`
	IsActive             bool               `json:"isActive" gorm:"column:is_active;default:true"`
	gorm.Model
}

// TableName specifies the table name for Scenario Model
func (Scenario) TableName() string {
	return "scenarios"
}
