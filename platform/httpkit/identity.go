package httpkit

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Owner is the authenticated account a request acts for. Every booking and
// nudge query is scoped to it.
type Owner struct {
	ID    uuid.UUID
	Roles []string
}

// GetOwner reads the owner set by AuthRequired.
func GetOwner(c *gin.Context) (Owner, bool) {
	raw, ok := c.Get(ContextOwnerIDKey)
	if !ok {
		return Owner{}, false
	}
	id, ok := raw.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return Owner{}, false
	}

	owner := Owner{ID: id}
	if roles, ok := c.Get(ContextRolesKey); ok {
		owner.Roles, _ = roles.([]string)
	}
	return owner, true
}

// MustGetOwner is GetOwner that aborts with 401 when no owner is present.
func MustGetOwner(c *gin.Context) (Owner, bool) {
	owner, ok := GetOwner(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
		return Owner{}, false
	}
	return owner, true
}
