package handlers

import (
	"net/http"

	"simulation-training-api/internal/database"
	"simulation-training-api/internal/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CreateScenarioRequest carries the fields the clock and lifecycle consume.
type CreateScenarioRequest struct {
	Title                string  `json:"title" binding:"required"`
	Description          string  `json:"description"`
	Difficulty           string  `json:"difficulty"`
	Specialty            string  `json:"specialty"`
	EstimatedDuration    int     `json:"estimatedDuration"`
	TimeAccelerationRate float64 `json:"timeAccelerationRate" binding:"required,gt=0"`
}

// CreateScenario authors a new scenario (supervisory roles only)
// POST /api/scenarios
func CreateScenario(c *gin.Context) {
	role := models.UserRole(c.GetString("role"))
	if !role.IsSupervisory() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only supervisory roles may author scenarios"})
		return
	}

	var req CreateScenarioRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request. Title and a positive timeAccelerationRate are required.",
		})
		return
	}

	scenario := models.Scenario{
		ID:                   uuid.NewString(),
		Title:                req.Title,
		Description:          req.Description,
		Difficulty:           models.ScenarioDifficulty(req.Difficulty),
		Specialty:            req.Specialty,
		EstimatedDuration:    req.EstimatedDuration,
		TimeAccelerationRate: req.TimeAccelerationRate,
		CreatedBy:            c.GetString("user_id"),
		IsActive:             true,
	}
	if scenario.Difficulty == "" {
		scenario.Difficulty = models.DifficultyBeginner
	}

	if err := database.GetDB().Create(&scenario).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create scenario"})
		return
	}

	c.JSON(http.StatusCreated, scenario)
}

// ListScenarios returns the active scenarios
// GET /api/scenarios
func ListScenarios(c *gin.Context) {
	var scenarios []models.Scenario
	if err := database.GetDB().Where("is_active = ?", true).Find(&scenarios).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch scenarios"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"scenarios": scenarios,
		"count":     len(scenarios),
	})
}

// GetScenario returns one scenario by id
// GET /api/scenarios/:id
func GetScenario(c *gin.Context) {
	var scenario models.Scenario
	if err := database.GetDB().First(&scenario, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
		return
	}

	c.JSON(http.StatusOK, scenario)
}
