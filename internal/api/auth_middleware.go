// internal/api/auth_middleware.go
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Corphon/AvaChat/internal/auth"
	"github.com/Corphon/AvaChat/internal/config"
	"github.com/Corphon/AvaChat/internal/utils"
)

// RequireAdmin protects runtime reconfiguration. With ADMIN_TOKEN set a
// matching bearer token is required; without it the route only works in
// debug mode.
func RequireAdmin(response *ResponseHelper) gin.HandlerFunc {
	logger := utils.GetLogger()
	return func(c *gin.Context) {
		cfg := config.GetCurrentConfig()
		guard := auth.NewAdminGuard(cfg.AdminToken)

		if !guard.Enabled() {
			if cfg.DebugMode {
				c.Next()
				return
			}
			response.Forbidden(c, "Runtime configuration is disabled")
			c.Abort()
			return
		}

		if err := guard.Check(c.GetHeader("Authorization")); err != nil {
			logger.Warn("Admin check failed", map[string]interface{}{
				"path":      c.FullPath(),
				"client_ip": c.ClientIP(),
				"reason":    err.Error(),
			})
			response.Error(c, http.StatusUnauthorized, ErrorUnauthorized, "Admin token required")
			c.Abort()
			return
		}
		c.Next()
	}
}
