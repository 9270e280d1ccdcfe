package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mrlokans/biblioteca/internal/demo"
)

// DemoController handles demo mode related endpoints.
type DemoController struct {
	middleware *demo.Middleware
}

func NewDemoController(middleware *demo.Middleware) *DemoController {
	return &DemoController{
		middleware: middleware,
	}
}

type DemoStatusResponse struct {
	Enabled bool   `json:"enabled"`
	Message string `json:"message"`
}

// GetStatus returns the current demo mode status.
// GET /api/demo/status
func (dc *DemoController) GetStatus(c *gin.Context) {
	if dc.middleware == nil || !dc.middleware.IsEnabled() {
		c.JSON(http.StatusOK, DemoStatusResponse{
			Enabled: false,
			Message: "Demo mode is not active",
		})
		return
	}

	c.JSON(http.StatusOK, DemoStatusResponse{
		Enabled: true,
		Message: "Demo mode is active - write operations are blocked",
	})
}

// isDemoMode reports whether the demo middleware marked this request.
func isDemoMode(c *gin.Context) bool {
	enabled, _ := c.Get(demo.ContextKeyDemoMode)
	isEnabled, _ := enabled.(bool)
	return isEnabled
}
