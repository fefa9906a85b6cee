// Package server provides the thin outer HTTP adapter over the command
// surface (spec §1 "out of scope: the outer tool-call RPC framing...
// the core exposes a typed in-process command surface; the outer layer
// is a thin adapter").
//
// Grounded on the teacher's handler registration idiom
// (api/internal/handlers: NewXHandler(deps) + RegisterRoutes(group)) and
// its middleware chain (api/cmd/main.go: gin.New() + Recovery + request
// logging), generalized from the teacher's many domain handlers to one
// handler per spec §6.1 command-surface row.
package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/streamspace-dev/inspector-broker/internal/brokererr"
	"github.com/streamspace-dev/inspector-broker/internal/command"
)

// Handler adapts *command.Surface to gin routes.
type Handler struct {
	surface *command.Surface
}

// NewHandler builds a Handler over surface.
func NewHandler(surface *command.Surface) *Handler {
	return &Handler{surface: surface}
}

// RegisterRoutes wires every command-surface row and the two resource
// URIs onto group (spec §6.1).
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.GET("/sessions", h.listSessions)
	group.POST("/sessions", h.connectDebugger)
	group.GET("/sessions/:id", h.getSessionDetails)
	group.DELETE("/sessions/:id", h.disconnectDebugger)

	group.POST("/sessions/:id/breakpoints", h.setBreakpoint)
	group.GET("/sessions/:id/breakpoints", h.listBreakpoints)
	group.DELETE("/sessions/:id/breakpoints/:breakpointId", h.removeBreakpoint)

	group.POST("/sessions/:id/resume", h.resumeExecution)
	group.POST("/sessions/:id/step_over", h.stepOver)
	group.POST("/sessions/:id/step_into", h.stepInto)
	group.POST("/sessions/:id/step_out", h.stepOut)
	group.POST("/sessions/:id/pause", h.pauseExecution)

	group.GET("/sessions/:id/call_stack", h.getCallStack)
	group.POST("/sessions/:id/evaluate", h.evaluateExpression)
	group.GET("/sessions/:id/scopes", h.getScopeVariables)
	group.POST("/sessions/:id/variables", h.setVariableValue)
	group.POST("/sessions/:id/pause_on_exceptions", h.setPauseOnExceptions)

	group.GET("/sessions/:id/scripts", h.listScripts)
	group.GET("/sessions/:id/scripts/:scriptId/source", h.getScriptSource)
	group.GET("/sessions/:id/scripts/:scriptId/original_location", h.getOriginalLocation)
}

type connectRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name"`
}

func (h *Handler) connectDebugger(c *gin.Context) {
	var req connectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		brokererr.Respond(c, brokererr.InvalidParameters(err.Error()))
		return
	}
	result, err := h.surface.ConnectDebugger(c.Request.Context(), req.URL, req.Name)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) disconnectDebugger(c *gin.Context) {
	if err := h.surface.DisconnectDebugger(c.Param("id")); err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, h.surface.ListSessions())
}

func (h *Handler) getSessionDetails(c *gin.Context) {
	details, err := h.surface.GetSessionDetails(c.Param("id"))
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, details)
}

type setBreakpointRequest struct {
	URL       string  `json:"url" binding:"required"`
	Line      int     `json:"line"`
	Column    *int    `json:"column,omitempty"`
	Condition *string `json:"condition,omitempty"`
}

func (h *Handler) setBreakpoint(c *gin.Context) {
	var req setBreakpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		brokererr.Respond(c, brokererr.InvalidParameters(err.Error()))
		return
	}
	result, err := h.surface.SetBreakpoint(c.Request.Context(), c.Param("id"), req.URL, req.Line, req.Column, req.Condition)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h *Handler) removeBreakpoint(c *gin.Context) {
	err := h.surface.RemoveBreakpoint(c.Request.Context(), c.Param("id"), c.Param("breakpointId"))
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) listBreakpoints(c *gin.Context) {
	list, err := h.surface.ListBreakpoints(c.Param("id"))
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) resumeExecution(c *gin.Context) {
	state, err := h.surface.ResumeExecution(c.Request.Context(), c.Param("id"))
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *Handler) stepOver(c *gin.Context) {
	if err := h.surface.StepOver(c.Request.Context(), c.Param("id")); err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) stepInto(c *gin.Context) {
	if err := h.surface.StepInto(c.Request.Context(), c.Param("id")); err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) stepOut(c *gin.Context) {
	if err := h.surface.StepOut(c.Request.Context(), c.Param("id")); err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) pauseExecution(c *gin.Context) {
	if err := h.surface.PauseExecution(c.Request.Context(), c.Param("id")); err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusOK)
}

func (h *Handler) getCallStack(c *gin.Context) {
	includeAsync := c.DefaultQuery("include_async", "true") == "true"
	result, err := h.surface.GetCallStack(c.Param("id"), includeAsync)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type evaluateRequest struct {
	Expression    string  `json:"expression" binding:"required"`
	CallFrameID   *string `json:"call_frame_id,omitempty"`
	ReturnByValue bool    `json:"return_by_value"`
}

func (h *Handler) evaluateExpression(c *gin.Context) {
	var req evaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		brokererr.Respond(c, brokererr.InvalidParameters(err.Error()))
		return
	}
	result, err := h.surface.EvaluateExpression(c.Request.Context(), c.Param("id"), req.Expression, req.CallFrameID, req.ReturnByValue)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getScopeVariables(c *gin.Context) {
	callFrameID := c.Query("call_frame_id")
	scopeIndex := 0
	if raw := c.Query("scope_index"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			scopeIndex = parsed
		}
	}
	result, err := h.surface.GetScopeVariables(c.Request.Context(), c.Param("id"), callFrameID, scopeIndex)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type setVariableRequest struct {
	CallFrameID  string `json:"call_frame_id" binding:"required"`
	ScopeIndex   int    `json:"scope_index"`
	VariableName string `json:"variable_name" binding:"required"`
	NewValue     string `json:"new_value" binding:"required"`
}

func (h *Handler) setVariableValue(c *gin.Context) {
	var req setVariableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		brokererr.Respond(c, brokererr.InvalidParameters(err.Error()))
		return
	}
	err := h.surface.SetVariableValue(c.Request.Context(), c.Param("id"), req.CallFrameID, req.ScopeIndex, req.VariableName, req.NewValue)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.Status(http.StatusOK)
}

type setPauseOnExceptionsRequest struct {
	State string `json:"state" binding:"required"`
}

func (h *Handler) setPauseOnExceptions(c *gin.Context) {
	var req setPauseOnExceptionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		brokererr.Respond(c, brokererr.InvalidParameters(err.Error()))
		return
	}
	state, err := h.surface.SetPauseOnExceptions(c.Request.Context(), c.Param("id"), req.State)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"state": state})
}

func (h *Handler) listScripts(c *gin.Context) {
	includeInternal := c.Query("include_internal") == "true"
	list, err := h.surface.ListScripts(c.Param("id"), includeInternal)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *Handler) getScriptSource(c *gin.Context) {
	preferOriginal := c.Query("prefer_original") == "true"
	result, err := h.surface.GetScriptSource(c.Request.Context(), c.Param("id"), c.Param("scriptId"), preferOriginal)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handler) getOriginalLocation(c *gin.Context) {
	line, _ := strconv.Atoi(c.Query("line"))
	column, _ := strconv.Atoi(c.Query("column"))
	result, err := h.surface.GetOriginalLocation(c.Param("id"), c.Param("scriptId"), line, column)
	if err != nil {
		brokererr.Respond(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
