package access

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"simulation-training-api/internal/cache"
	"simulation-training-api/internal/models"
	"simulation-training-api/internal/realtime"
)

// decisionTTL bounds how long a cached access decision may be served. Short
// enough that a supervisor reassignment takes effect quickly.
const decisionTTL = 30 * time.Second

// Authority decides who may watch a session. It is the external check the
// subscription index delegates to; decisions are cached briefly because the
// real-time layer asks on every subscribe.
type Authority struct {
	db        *gorm.DB
	decisions *cache.TTLCache[string, bool]
}

// NewAuthority constructs an authority over the given database.
func NewAuthority(db *gorm.DB) *Authority {
	return &Authority{
		db:        db,
		decisions: cache.NewTTLCache[string, bool](),
	}
}

// CanAccess reports whether the user may watch the session. Unknown sessions
// return a typed NOT_FOUND error.
func (a *Authority) CanAccess(userID string, role models.UserRole, sessionID string) (bool, error) {
	key := userID + ":" + sessionID
	if allowed, ok := a.decisions.Get(key); ok {
		return allowed, nil
	}

	var session models.SimSession
	if err := a.db.First(&session, "id = ?", sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, realtime.ErrNotFound("session", sessionID)
		}
		return false, err
	}

	allowed := a.decide(userID, role, &session)
	a.decisions.Set(key, allowed, decisionTTL)
	return allowed, nil
}

// decide applies the watch rule: the session's student, its assigned
// supervisor, any supervisory role, observers, and admins.
func (a *Authority) decide(userID string, role models.UserRole, session *models.SimSession) bool {
	switch {
	case role == models.RoleAdmin:
		return true
	case session.StudentID == userID:
		return true
	case session.SupervisorID != "" && session.SupervisorID == userID:
		return true
	case role.IsSupervisory():
		return true
	case role == models.RoleObserver:
		return true
	default:
		return false
	}
}

// Invalidate drops any cached decisions for a session, e.g. after its
// supervisor assignment changes.
func (a *Authority) Invalidate(userID, sessionID string) {
	a.decisions.Delete(userID + ":" + sessionID)
}
