package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/rewards-backend/internal/http/middleware"
)

// HeaderAdminToken carries the administrative token.
const HeaderAdminToken = "X-Admin-Token"

// AdminEnabled reports whether the admin endpoints should be mounted.
func (h *Handlers) AdminEnabled() bool { return h.adminToken != "" && h.admin != nil }

// ResetAll godoc
// @ID          resetAll
// @Summary     Delete all data
// @Description Removes every account, referral, ledger entry, inventory item and idempotency record, and clears the caches.
// @Tags        Admin
// @Param       X-Admin-Token  header  string  true  "Admin token"
// @Success     204  {string}  string  "No Content"
// @Failure     401  {object}  handlers.ErrorResponse  "Unauthorized"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /admin/reset [post]
func (h *Handlers) ResetAll(c *gin.Context) {
	got := c.GetHeader(HeaderAdminToken)
	if !h.AdminEnabled() || subtle.ConstantTimeCompare([]byte(got), []byte(h.adminToken)) != 1 {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "invalid admin token")
		return
	}
	if err := h.admin.Reset(c.Request.Context()); err != nil {
		fromServiceError(c, err)
		return
	}
	middleware.LoggerFrom(c).Warn().Msg("all data reset")
	noContent(c)
}
