package common

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
)

// Business codes. The first three digits follow the HTTP status family.
const (
	CodeOK              = 0
	CodeInvalidJSON     = 10001
	CodeValidation      = 10002
	CodeUnauthenticated = 40101
	CodeUnauthorized    = 40301
	CodeNotFound        = 40401
	CodeRouteNotFound   = 40400
	CodeMethodNotAllow  = 40500
	CodeConflict        = 40901
	CodeRateLimited     = 42901
	CodeInternal        = 50001
	CodeLLMUnavailable  = 50301
	CodeSTTUnavailable  = 50302
	CodeTTSUnavailable  = 50303
)

func OK(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    CodeOK,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

type errorMapping struct {
	status int
	code   int
	// fixed message replaces the error's own message (external failures)
	message string
}

var kindMappings = map[apperr.Kind]errorMapping{
	apperr.KindValidation:      {http.StatusBadRequest, CodeValidation, ""},
	apperr.KindUnauthenticated: {http.StatusUnauthorized, CodeUnauthenticated, ""},
	apperr.KindUnauthorized:    {http.StatusForbidden, CodeUnauthorized, ""},
	apperr.KindNotFound:        {http.StatusNotFound, CodeNotFound, ""},
	apperr.KindConflict:        {http.StatusConflict, CodeConflict, ""},
	apperr.KindRateLimited:     {http.StatusTooManyRequests, CodeRateLimited, ""},
	apperr.KindLLMUnavailable:  {http.StatusServiceUnavailable, CodeLLMUnavailable, "the character is unavailable right now, please retry"},
	apperr.KindSTTUnavailable:  {http.StatusServiceUnavailable, CodeSTTUnavailable, "speech recognition is unavailable right now, please retry"},
	apperr.KindTTSUnavailable:  {http.StatusServiceUnavailable, CodeTTSUnavailable, "speech synthesis is unavailable right now, please retry"},
	apperr.KindInternal:        {http.StatusInternalServerError, CodeInternal, "internal error"},
}

// FailErr writes the envelope for err, including the machine-readable kind.
func FailErr(c *gin.Context, err error) {
	kind := apperr.KindOf(err)
	m, ok := kindMappings[kind]
	if !ok {
		m = kindMappings[apperr.KindInternal]
		kind = apperr.KindInternal
	}
	msg := m.message
	if msg == "" {
		msg = apperr.MessageOf(err)
	}
	if kind == apperr.KindInternal || m.status >= 500 {
		_ = c.Error(err)
	}
	c.JSON(m.status, gin.H{
		"code":    m.code,
		"message": msg,
		"error":   string(kind),
		"data":    nil,
	})
}

// StatusFor returns the HTTP status FailErr would use.
func StatusFor(err error) int {
	if m, ok := kindMappings[apperr.KindOf(err)]; ok {
		return m.status
	}
	return http.StatusInternalServerError
}
