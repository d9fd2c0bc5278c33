package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/config"
	"github.com/suPer8Hu/ai-roleplay/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-roleplay/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-roleplay/internal/metrics"
)

type Options struct {
	Cfg      config.Config
	Log      zerolog.Logger
	Handlers handlers.Deps
	// MediaDir is served under MediaURL when audio is stored on local disk.
	MediaDir string
	MediaURL string
}

func NewRouter(o Options) *gin.Engine {
	if !o.Cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.AccessLog(o.Log))
	r.Use(middleware.Recovery(o.Log))
	r.Use(middleware.CORS(o.Cfg.CORSAllowOrigins))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, common.CodeRouteNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, common.CodeMethodNotAllow, "method not allowed")
	})

	h := handlers.NewHandler(o.Handlers)

	r.GET("/ping", h.Ping)
	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if o.MediaDir != "" {
		url := o.MediaURL
		if url == "" {
			url = "/media"
		}
		r.Static(url, o.MediaDir)
	}

	// auth
	r.POST("/auth/register", h.Register)
	r.POST("/auth/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(o.Handlers.Users))
	authGroup.GET("/me", h.Me)
	authGroup.PATCH("/me", h.UpdateMe)

	// role catalog
	authGroup.GET("/role/list", h.ListRoles)
	authGroup.GET("/role/search", h.SearchRoles)
	authGroup.GET("/role/template/:name", h.GetTemplate)
	authGroup.POST("/role/create-from-template", h.CreateFromTemplate)
	authGroup.POST("/role", h.CreateRole)
	authGroup.GET("/role/:id", h.GetRole)
	authGroup.PATCH("/role/:id", h.UpdateRole)
	authGroup.DELETE("/role/:id", h.DeleteRole)

	// knowledge
	authGroup.POST("/rag/snippets", h.CreateSnippets)
	authGroup.GET("/rag/snippets", h.ListSnippets)
	authGroup.DELETE("/rag/snippets/:id", h.DeleteSnippet)
	authGroup.POST("/rag/upload", h.UploadDocument)
	authGroup.POST("/rag/search", h.SearchKnowledge)

	// chat
	authGroup.POST("/chat/text", h.ChatText)
	authGroup.POST("/chat/text/stream", h.ChatTextStream)
	authGroup.POST("/chat/stt", h.SpeechToText)
	authGroup.POST("/chat/tts", h.TextToSpeech)
	authGroup.POST("/chat/clear", h.ClearContext)
	authGroup.POST("/chat/feedback", h.SubmitFeedback)
	authGroup.GET("/chat/sessions", h.ListSessions)
	authGroup.GET("/chat/sessions/:session_id", h.GetSession)
	authGroup.PATCH("/chat/sessions/:session_id", h.UpdateSession)
	authGroup.DELETE("/chat/sessions/:session_id", h.DeleteSession)
	authGroup.GET("/chat/sessions/:session_id/messages", h.ListChatMessages)
	return r
}
