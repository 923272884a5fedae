package handlers

import (
	"errors"
	"net/http"
	"time"

	"simulation-training-api/internal/access"
	"simulation-training-api/internal/database"
	"simulation-training-api/internal/lifecycle"
	"simulation-training-api/internal/models"
	"simulation-training-api/internal/realtime"
	"simulation-training-api/internal/simtime"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SessionHandler serves the session lifecycle and the producer endpoints
// that feed the real-time core.
type SessionHandler struct {
	Clocks        *simtime.ClockStore
	Scheduler     *simtime.Scheduler
	Router        *realtime.Router
	Notifications *realtime.NotificationStore
	Authority     *access.Authority
}

// respondError maps typed errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var transErr *lifecycle.TransitionError
	if errors.As(err, &transErr) {
		c.JSON(http.StatusConflict, gin.H{"error": transErr.Error()})
		return
	}

	var rtErr *realtime.Error
	if errors.As(err, &rtErr) {
		status := http.StatusInternalServerError
		switch rtErr.Code {
		case realtime.CodeNotFound:
			status = http.StatusNotFound
		case realtime.CodeInvalidMode, realtime.CodeNotSubscribed:
			status = http.StatusConflict
		case realtime.CodeAuthorization, realtime.CodeAuthentication:
			status = http.StatusForbidden
		}
		c.JSON(status, gin.H{"error": rtErr.Message, "code": rtErr.Code})
		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func (h *SessionHandler) loadSession(c *gin.Context) (*models.SimSession, bool) {
	var session models.SimSession
	if err := database.GetDB().First(&session, "id = ?", c.Param("id")).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load session"})
		}
		return nil, false
	}
	return &session, true
}

// canControl gates clock and lifecycle mutation: the session owner or an
// authorized supervisor, never observers.
func canControl(c *gin.Context, session *models.SimSession) bool {
	userID := c.GetString("user_id")
	role := models.UserRole(c.GetString("role"))
	return session.StudentID == userID || role.IsSupervisory()
}

// CreateSessionRequest creates a DRAFT session for a scenario.
type CreateSessionRequest struct {
	ScenarioID   string `json:"scenarioId" binding:"required"`
	SupervisorID string `json:"supervisorId"`
}

// CreateSession creates a session in DRAFT
// POST /api/sessions
func (h *SessionHandler) CreateSession(c *gin.Context) {
	var req CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. scenarioId is required."})
		return
	}

	var scenario models.Scenario
	if err := database.GetDB().First(&scenario, "id = ?", req.ScenarioID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Scenario not found"})
		return
	}

	session := models.SimSession{
		ID:           uuid.NewString(),
		ScenarioID:   scenario.ID,
		StudentID:    c.GetString("user_id"),
		SupervisorID: req.SupervisorID,
		Status:       lifecycle.StatusDraft,
	}
	if err := database.GetDB().Create(&session).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create session"})
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession returns the session and, when live, its clock state
// GET /api/sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}

	allowed, err := h.Authority.CanAccess(c.GetString("user_id"), models.UserRole(c.GetString("role")), session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to session"})
		return
	}

	resp := gin.H{"session": session}
	if clock, err := h.Clocks.Get(session.ID); err == nil {
		resp["clock"] = clock
	}
	c.JSON(http.StatusOK, resp)
}

// transition applies a lifecycle change, persists it, and announces it.
func (h *SessionHandler) transition(c *gin.Context, to lifecycle.Status) (*models.SimSession, bool) {
	session, ok := h.loadSession(c)
	if !ok {
		return nil, false
	}
	if !canControl(c, session) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to control this session"})
		return nil, false
	}

	next, err := lifecycle.Transition(session.Status, to)
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	session.Status = next

	if err := database.GetDB().Save(session).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update session"})
		return nil, false
	}

	h.Router.NotifySessionStatusChange(session.ID, string(next), c.GetString("user_id"))
	return session, true
}

// StartSession activates a DRAFT session and creates its virtual clock
// POST /api/sessions/:id/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	session, ok := h.transition(c, lifecycle.StatusActive)
	if !ok {
		return
	}

	var scenario models.Scenario
	if err := database.GetDB().First(&scenario, "id = ?", session.ScenarioID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load scenario"})
		return
	}

	clock, err := h.Clocks.Start(session.ID, scenario.TimeAccelerationRate)
	if err != nil {
		respondError(c, err)
		return
	}

	now := time.Now()
	session.StartTime = &now
	database.GetDB().Save(session)

	c.JSON(http.StatusOK, gin.H{"session": session, "clock": clock})
}

// PauseSession freezes the session's clock
// POST /api/sessions/:id/pause
func (h *SessionHandler) PauseSession(c *gin.Context) {
	session, ok := h.transition(c, lifecycle.StatusPaused)
	if !ok {
		return
	}

	clock, err := h.Clocks.SetMode(session.ID, simtime.ModePaused)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "clock": clock})
}

// ResumeSession reactivates a paused session. Wall-clock time spent paused
// is not replayed into virtual time.
// POST /api/sessions/:id/resume
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	session, ok := h.transition(c, lifecycle.StatusActive)
	if !ok {
		return
	}

	clock, err := h.Clocks.Resume(session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session, "clock": clock})
}

// CompleteSession moves the session to COMPLETED
// POST /api/sessions/:id/complete
func (h *SessionHandler) CompleteSession(c *gin.Context) {
	h.finish(c, lifecycle.StatusCompleted)
}

// CancelSession moves the session to CANCELLED
// POST /api/sessions/:id/cancel
func (h *SessionHandler) CancelSession(c *gin.Context) {
	h.finish(c, lifecycle.StatusCancelled)
}

func (h *SessionHandler) finish(c *gin.Context, to lifecycle.Status) {
	session, ok := h.transition(c, to)
	if !ok {
		return
	}

	// Freeze the final time totals into the row, then drop the live state.
	if snapshot, live := h.Clocks.Stop(session.ID); live {
		session.TotalVirtualTimeElapsed = snapshot.TotalVirtualElapsed
		session.TotalRealTimeElapsed = snapshot.TotalRealElapsed
	}
	now := time.Now()
	session.EndTime = &now
	database.GetDB().Save(session)
	h.Scheduler.DropSession(session.ID)

	c.JSON(http.StatusOK, gin.H{"session": session})
}

// SetTimeModeRequest switches the clock flow mode.
type SetTimeModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

// SetTimeMode changes the session's time flow mode
// PUT /api/sessions/:id/time-mode
func (h *SessionHandler) SetTimeMode(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	if !canControl(c, session) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to control this session"})
		return
	}
	if err := lifecycle.RequireActive(session.Status); err != nil {
		respondError(c, err)
		return
	}

	var req SetTimeModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. mode is required."})
		return
	}

	clock, err := h.Clocks.SetMode(session.ID, simtime.FlowMode(req.Mode))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"clock": clock})
}

// FastForwardRequest advances virtual time in bulk.
type FastForwardRequest struct {
	VirtualMinutes int `json:"virtualMinutes" binding:"required,gt=0"`
}

// FastForward advances the virtual clock and fires the due events
// POST /api/sessions/:id/fast-forward
func (h *SessionHandler) FastForward(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	if !canControl(c, session) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Not allowed to control this session"})
		return
	}
	if err := lifecycle.RequireActive(session.Status); err != nil {
		respondError(c, err)
		return
	}

	var req FastForwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. virtualMinutes must be > 0."})
		return
	}

	adv, err := h.Clocks.FastForward(session.ID, req.VirtualMinutes)
	if err != nil {
		respondError(c, err)
		return
	}

	triggered := h.Scheduler.Advance(session.ID, adv.From, adv.To)

	session.TotalVirtualTimeElapsed += adv.VirtualMinutes
	session.TotalRealTimeElapsed += adv.RealSeconds
	database.GetDB().Save(session)

	c.JSON(http.StatusOK, gin.H{
		"session":            session,
		"triggeredEvents":    triggered,
		"virtualTimeElapsed": adv.VirtualMinutes,
		"realTimeElapsed":    adv.RealSeconds,
	})
}

// ScheduleEventRequest inserts a pending time event.
type ScheduleEventRequest struct {
	Kind              string         `json:"kind" binding:"required"`
	InVirtualMinutes  int            `json:"inVirtualMinutes" binding:"required,gt=0"`
	RequiresAttention bool           `json:"requiresAttention"`
	Severity          string         `json:"severity"`
	Data              map[string]any `json:"data"`
}

// ScheduleEvent lets a domain producer register a future time event
// POST /api/sessions/:id/events
func (h *SessionHandler) ScheduleEvent(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	role := models.UserRole(c.GetString("role"))
	if !role.IsSupervisory() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only supervisory roles may schedule events"})
		return
	}
	if err := lifecycle.RequireActive(session.Status); err != nil {
		respondError(c, err)
		return
	}

	var req ScheduleEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. kind and inVirtualMinutes are required."})
		return
	}

	clock, err := h.Clocks.Get(session.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	event := h.Scheduler.Schedule(session.ID, simtime.TimeEvent{
		Kind:                 req.Kind,
		Data:                 req.Data,
		ScheduledVirtualTime: clock.CurrentVirtualTime.Add(time.Duration(req.InVirtualMinutes) * time.Minute),
		RequiresAttention:    req.RequiresAttention,
		Severity:             realtime.NotificationPriority(req.Severity),
	})
	c.JSON(http.StatusCreated, event)
}

// ListEvents returns the pending and triggered events of a session
// GET /api/sessions/:id/events
func (h *SessionHandler) ListEvents(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	allowed, err := h.Authority.CanAccess(c.GetString("user_id"), models.UserRole(c.GetString("role")), session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"pending":   h.Scheduler.Pending(session.ID),
		"triggered": h.Scheduler.Triggered(session.ID),
	})
}

// CreateNotificationRequest is the producer surface for notifications.
type CreateNotificationRequest struct {
	Kind         string `json:"kind" binding:"required"`
	Title        string `json:"title"`
	Message      string `json:"message" binding:"required"`
	Priority     string `json:"priority"`
	AutoExpireIn int    `json:"autoExpireIn"`
}

// CreateNotification lets a producer push a notification into the session
// POST /api/sessions/:id/notifications
func (h *SessionHandler) CreateNotification(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	role := models.UserRole(c.GetString("role"))
	if !role.IsSupervisory() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only supervisory roles may create notifications"})
		return
	}

	var req CreateNotificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. kind and message are required."})
		return
	}

	n, err := h.Notifications.Create(realtime.CreateNotification{
		SessionID:    session.ID,
		Kind:         req.Kind,
		Title:        req.Title,
		Message:      req.Message,
		Priority:     realtime.NotificationPriority(req.Priority),
		AutoExpireIn: req.AutoExpireIn,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, n)
}

// ListNotifications returns a session's notifications
// GET /api/sessions/:id/notifications?active=true
func (h *SessionHandler) ListNotifications(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	allowed, err := h.Authority.CanAccess(c.GetString("user_id"), models.UserRole(c.GetString("role")), session.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	if !allowed {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to session"})
		return
	}

	var notifications []*realtime.Notification
	if c.Query("active") == "true" {
		notifications = h.Notifications.ListActive(session.ID)
	} else {
		notifications = h.Notifications.ListAll(session.ID)
	}
	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// SendFeedbackRequest is supervisor feedback aimed at one participant.
type SendFeedbackRequest struct {
	TargetUserID     string   `json:"targetUserId" binding:"required"`
	Severity         string   `json:"severity" binding:"required"`
	Message          string   `json:"message" binding:"required"`
	SuggestedActions []string `json:"suggestedActions"`
}

// SendFeedback delivers real-time feedback to a target user
// POST /api/sessions/:id/feedback
func (h *SessionHandler) SendFeedback(c *gin.Context) {
	session, ok := h.loadSession(c)
	if !ok {
		return
	}
	role := models.UserRole(c.GetString("role"))
	if !role.IsSupervisory() {
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions to send feedback"})
		return
	}

	var req SendFeedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request. targetUserId, severity and message are required."})
		return
	}

	h.Router.SendFeedback(session.ID, req.TargetUserID, realtime.FeedbackPayload{
		Severity:         req.Severity,
		Message:          req.Message,
		SuggestedActions: req.SuggestedActions,
		SentBy:           c.GetString("user_id"),
		SentByRole:       string(role),
	})
	c.JSON(http.StatusAccepted, gin.H{"delivered": true})
}
