package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"fixhub/internal/domain/repository"
)

type RoleMiddleware struct {
	participantRepo repository.ParticipantRepository
}

func NewRoleMiddleware(participantRepo repository.ParticipantRepository) *RoleMiddleware {
	return &RoleMiddleware{
		participantRepo: participantRepo,
	}
}

// InitiatorOnly admits only roles that may open a conversation with a chosen
// participant set. Customers get their conversations opened for them by the
// booking flow, so they never pass this gate.
func (m *RoleMiddleware) InitiatorOnly(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {

		uid, ok := c.Get("uid").(string)
		if !ok {
			return echo.NewHTTPError(http.StatusUnauthorized, "Authentication required")
		}

		participant, err := m.participantRepo.GetByID(c.Request().Context(), uid)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, "Failed to verify role")
		}

		if !participant.Role.CanInitiateConversation() {
			return echo.NewHTTPError(http.StatusForbidden, "Staff or worker role required")
		}

		return next(c)
	}
}
