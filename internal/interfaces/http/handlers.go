package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/coop-approvals/internal/application/port"
	"github.com/garyjia/coop-approvals/internal/application/service"
	"github.com/garyjia/coop-approvals/internal/application/workflow"
	"github.com/garyjia/coop-approvals/internal/domain/entity"
)

// ActorHeader carries the caller's actor id. Authenticating it is the job of
// the gateway in front of this service.
const ActorHeader = "X-Actor-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	requests service.RequestService
	metrics  service.MetricsService
	roles    service.RoleService
	logger   port.Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(requests service.RequestService, metrics service.MetricsService, roles service.RoleService, logger port.Logger) *Handlers {
	return &Handlers{requests: requests, metrics: metrics, roles: roles, logger: logger}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// CreateRequestBody is the body of POST /requests. The initiator is the caller.
type CreateRequestBody struct {
	Type         entity.RequestType   `json:"type"`
	Content      json.RawMessage      `json:"content"`
	Priority     entity.Priority      `json:"priority"`
	LinkedEntity *entity.LinkedEntity `json:"linkedEntity"`
}

// TransitionBody is the body of POST /requests/:id/transitions
type TransitionBody struct {
	Action         entity.Action        `json:"action"`
	Notes          string               `json:"notes"`
	Reason         string               `json:"reason"`
	ExpectedStatus entity.RequestStatus `json:"expectedStatus"`
}

// TransitionResponse returns the request with the actions now open to it
type TransitionResponse struct {
	Request          *entity.Request `json:"request"`
	AvailableActions []entity.Action `json:"availableActions"`
}

// AssignRoleBody is the body of PUT /actors/:id/role
type AssignRoleBody struct {
	Role string `json:"role"`
}

// CountResponse is a single count
type CountResponse struct {
	Count int `json:"count"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	ok(c, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func actor(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(ActorHeader))
}

// requireActor writes a validation error and returns false when the actor
// header is missing
func (h *Handlers) requireActor(c *gin.Context) (string, bool) {
	id := actor(c)
	if id == "" {
		h.badRequest(c, "%s header is required", ActorHeader)
		return "", false
	}
	return id, true
}

// CreateRequest handles POST /api/v1/requests
func (h *Handlers) CreateRequest(c *gin.Context) {
	actorID, okActor := h.requireActor(c)
	if !okActor {
		return
	}

	var body CreateRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	req, err := h.requests.Create(c.Request.Context(), service.CreateRequestInput{
		Type:         body.Type,
		InitiatorID:  actorID,
		Content:      body.Content,
		Priority:     body.Priority,
		LinkedEntity: body.LinkedEntity,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusCreated, req)
}

// GetRequest handles GET /api/v1/requests/:id
func (h *Handlers) GetRequest(c *gin.Context) {
	req, err := h.requests.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, req)
}

// ListRequests handles GET /api/v1/requests. The body is the bare list
// envelope, not wrapped in Response.
func (h *Handlers) ListRequests(c *gin.Context) {
	var in service.ListRequestsInput
	if err := c.ShouldBindQuery(&in); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	page, err := h.requests.List(c.Request.Context(), in)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetHistory handles GET /api/v1/requests/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	entries, err := h.requests.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, entries)
}

// DeleteRequest handles DELETE /api/v1/requests/:id
func (h *Handlers) DeleteRequest(c *gin.Context) {
	actorID, okActor := h.requireActor(c)
	if !okActor {
		return
	}
	if err := h.requests.Delete(c.Request.Context(), c.Param("id"), actorID); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Transition handles POST /api/v1/requests/:id/transitions
func (h *Handlers) Transition(c *gin.Context) {
	actorID, okActor := h.requireActor(c)
	if !okActor {
		return
	}

	var body TransitionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	req, err := h.requests.Transition(c.Request.Context(), workflow.TransitionCommand{
		RequestID:      c.Param("id"),
		Action:         body.Action,
		ActorID:        actorID,
		Notes:          body.Notes,
		Reason:         body.Reason,
		ExpectedStatus: body.ExpectedStatus,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, TransitionResponse{
		Request:          req,
		AvailableActions: workflow.AvailableActions(req.Status),
	})
}

func filterInput(c *gin.Context) service.FilterInput {
	return service.FilterInput{
		Type:    c.Query("type"),
		Status:  c.Query("status"),
		ActorID: c.Query("actorId"),
	}
}

// PendingCount handles GET /api/v1/metrics/pending-count
func (h *Handlers) PendingCount(c *gin.Context) {
	n, err := h.metrics.PendingCount(c.Request.Context(), filterInput(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, CountResponse{Count: n})
}

// StatusCounts handles GET /api/v1/metrics/status-counts
func (h *Handlers) StatusCounts(c *gin.Context) {
	counts, err := h.metrics.CountsByStatus(c.Request.Context(), filterInput(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, counts)
}

// LevelCounts handles GET /api/v1/metrics/level-counts
func (h *Handlers) LevelCounts(c *gin.Context) {
	counts, err := h.metrics.CountsByApprovalLevel(c.Request.Context(), filterInput(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, counts)
}

// GetRole handles GET /api/v1/roles/:name
func (h *Handlers) GetRole(c *gin.Context) {
	role, err := h.roles.GetRole(c.Request.Context(), c.Param("name"))
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, role)
}

// UpsertRole handles PUT /api/v1/roles/:name
func (h *Handlers) UpsertRole(c *gin.Context) {
	actorID, okActor := h.requireActor(c)
	if !okActor {
		return
	}

	var in service.RoleInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}
	in.Name = c.Param("name")

	role, err := h.roles.UpsertRole(c.Request.Context(), actorID, in)
	if err != nil {
		h.fail(c, err)
		return
	}
	ok(c, http.StatusOK, role)
}

// AssignRole handles PUT /api/v1/actors/:id/role
func (h *Handlers) AssignRole(c *gin.Context) {
	actorID, okActor := h.requireActor(c)
	if !okActor {
		return
	}

	var body AssignRoleBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	if err := h.roles.AssignActor(c.Request.Context(), actorID, c.Param("id"), body.Role); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
