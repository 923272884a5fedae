package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"simulation-training-api/internal/auth"
	"simulation-training-api/internal/database"
	"simulation-training-api/internal/middleware"
	"simulation-training-api/internal/models"
	"simulation-training-api/internal/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupScenarioRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := testutil.NewInMemoryDB()
	require.NoError(t, err)
	database.DB = db

	r := gin.New()
	api := r.Group("/api", middleware.JWTAuthMiddleware())
	api.POST("/scenarios", CreateScenario)
	api.GET("/scenarios", ListScenarios)
	api.GET("/scenarios/:id", GetScenario)
	return r
}

func TestCreateScenario(t *testing.T) {
	r := setupScenarioRouter(t)
	token, err := auth.GenerateToken("supervisor-1", "supervisor", models.RoleSupervisor)
	require.NoError(t, err)

	w := postJSON(r, "/api/scenarios", token, gin.H{
		"title":                "Sepsis onset",
		"difficulty":           "advanced",
		"timeAccelerationRate": 30,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var scenario models.Scenario
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &scenario))
	require.Equal(t, "Sepsis onset", scenario.Title)
	require.Equal(t, float64(30), scenario.TimeAccelerationRate)
	require.Equal(t, "supervisor-1", scenario.CreatedBy)
	require.True(t, scenario.IsActive)

	req := httptest.NewRequest(http.MethodGet, "/api/scenarios/"+scenario.ID, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	get := httptest.NewRecorder()
	r.ServeHTTP(get, req)
	require.Equal(t, http.StatusOK, get.Code)
}

func TestCreateScenario_StudentForbidden(t *testing.T) {
	r := setupScenarioRouter(t)
	token, err := auth.GenerateToken("student-1", "student", models.RoleStudent)
	require.NoError(t, err)

	w := postJSON(r, "/api/scenarios", token, gin.H{
		"title":                "Sepsis onset",
		"timeAccelerationRate": 30,
	})
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestCreateScenario_RejectsZeroRate(t *testing.T) {
	r := setupScenarioRouter(t)
	token, err := auth.GenerateToken("supervisor-1", "supervisor", models.RoleSupervisor)
	require.NoError(t, err)

	w := postJSON(r, "/api/scenarios", token, gin.H{
		"title":                "Broken",
		"timeAccelerationRate": 0,
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListScenarios_SkipsInactive(t *testing.T) {
	r := setupScenarioRouter(t)
	token, err := auth.GenerateToken("supervisor-1", "supervisor", models.RoleSupervisor)
	require.NoError(t, err)

	db := database.GetDB()
	require.NoError(t, db.Create(&models.Scenario{ID: "a", Title: "Live", TimeAccelerationRate: 1, IsActive: true}).Error)
	require.NoError(t, db.Create(&models.Scenario{ID: "b", Title: "Retired", TimeAccelerationRate: 1}).Error)
	// The column defaults to true, so retire it explicitly.
	require.NoError(t, db.Model(&models.Scenario{}).Where("id = ?", "b").Update("is_active", false).Error)

	req := httptest.NewRequest(http.MethodGet, "/api/scenarios", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "Live")
	require.NotContains(t, w.Body.String(), "Retired")
}
