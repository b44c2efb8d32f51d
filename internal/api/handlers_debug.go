// handlers_debug.go - Debug log channel switch
package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/audio-tag-editor/backend/internal/debug"
)

// DebugHandlerImpl implements the DebugHandler interface
type DebugHandlerImpl struct{}

// NewDebugHandler creates a new debug handler
func NewDebugHandler() DebugHandler {
	return &DebugHandlerImpl{}
}

func debugState(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]bool{"enabled": debug.Enabled()})
}

// HandleGetDebug reports whether debug output is on
func (h *DebugHandlerImpl) HandleGetDebug(c echo.Context) error {
	return debugState(c)
}

// HandleSetDebug switches debug output with {"enabled": bool}
func (h *DebugHandlerImpl) HandleSetDebug(c echo.Context) error {
	var req struct {
		Enabled *bool `json:"enabled"`
	}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid request body", err)
	}
	if req.Enabled == nil {
		return NewValidationError("enabled")
	}
	debug.Set(*req.Enabled)
	return debugState(c)
}

// HandleToggleDebug flips debug output
func (h *DebugHandlerImpl) HandleToggleDebug(c echo.Context) error {
	debug.Toggle()
	return debugState(c)
}
