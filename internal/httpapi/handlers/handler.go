package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/chat"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
	"github.com/suPer8Hu/ai-roleplay/internal/users"
)

// HealthCheck is one dependency probed by /healthz.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

type Deps struct {
	Users     *users.Service
	Roles     *role.Service
	Knowledge *knowledge.Service
	Chat      *chat.Service
	Checks    []HealthCheck
	Log       zerolog.Logger

	MaxAudioUploadBytes int64
}

type Handler struct {
	Users     *users.Service
	Roles     *role.Service
	Knowledge *knowledge.Service
	ChatSvc   *chat.Service
	checks    []HealthCheck
	log       zerolog.Logger

	maxAudioBytes int64
}

func NewHandler(d Deps) *Handler {
	if d.MaxAudioUploadBytes <= 0 {
		d.MaxAudioUploadBytes = 20 << 20
	}
	return &Handler{
		Users:         d.Users,
		Roles:         d.Roles,
		Knowledge:     d.Knowledge,
		ChatSvc:       d.Chat,
		checks:        d.Checks,
		log:           d.Log,
		maxAudioBytes: d.MaxAudioUploadBytes,
	}
}

func userIDFromContext(c *gin.Context) (uint64, bool) {
	return middleware.UserID(c)
}

// currentUser writes the 401 envelope itself when the id is missing.
func currentUser(c *gin.Context) (uint64, bool) {
	uid, ok := userIDFromContext(c)
	if !ok {
		common.FailErr(c, apperr.Unauthenticated("unauthorized"))
		return 0, false
	}
	return uid, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		common.Fail(c, http.StatusBadRequest, common.CodeInvalidJSON, "invalid json")
		return false
	}
	return true
}

func uintParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.FailErr(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return id, true
}

// uintQuery returns 0 when the query parameter is absent.
func uintQuery(c *gin.Context, name string) (uint64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		common.FailErr(c, apperr.Validation("invalid "+name))
		return 0, false
	}
	return n, true
}

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"pong": true})
}

// Healthz probes every dependency and reports 503 when one fails.
func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	results := gin.H{}
	for _, chk := range h.checks {
		if err := chk.Check(c.Request.Context()); err != nil {
			h.log.Warn().Err(err).Str("check", chk.Name).Msg("health check failed")
			results[chk.Name] = "down"
			status = http.StatusServiceUnavailable
			continue
		}
		results[chk.Name] = "up"
	}
	if status != http.StatusOK {
		c.JSON(status, gin.H{"code": common.CodeInternal, "message": "unhealthy", "data": results})
		return
	}
	common.OK(c, results)
}
