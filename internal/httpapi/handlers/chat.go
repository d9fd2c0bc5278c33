package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/chat"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
)

// roleRef is a role_id given either as a numeric id or as a template/role name.
type roleRef struct {
	ID  *uint64
	Key string
}

func (r *roleRef) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if n, err := strconv.ParseUint(s, 10, 64); err == nil {
			r.ID = &n
			return nil
		}
		r.Key = s
		return nil
	}
	var n uint64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("role_id must be a number or a name")
	}
	r.ID = &n
	return nil
}

type chatTextReq struct {
	Content   string  `json:"content"`
	RoleID    roleRef `json:"role_id"`
	SessionID string  `json:"session_id"`
	WithAudio bool    `json:"with_audio"`
	Voice     string  `json:"voice"`
	Format    string  `json:"format"`
}

func (h *Handler) sendInput(c *gin.Context, uid uint64, req chatTextReq) chat.SendInput {
	return chat.SendInput{
		UserID:         uid,
		RoleID:         req.RoleID.ID,
		RoleKey:        req.RoleID.Key,
		SessionID:      strings.TrimSpace(req.SessionID),
		Content:        req.Content,
		IdempotencyKey: c.GetHeader("Idempotency-Key"),
		WithAudio:      req.WithAudio,
		Voice:          req.Voice,
		AudioFormat:    req.Format,
	}
}

// ChatText runs one synchronous chat turn.
func (h *Handler) ChatText(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req chatTextReq
	if !bindJSON(c, &req) {
		return
	}

	res, err := h.ChatSvc.SendMessage(c.Request.Context(), h.sendInput(c, uid, req))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, res)
}

// ChatTextStream runs the same turn and streams the reply as server-sent events.
func (h *Handler) ChatTextStream(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req chatTextReq
	if !bindJSON(c, &req) {
		return
	}

	ctx := c.Request.Context()
	st, err := h.ChatSvc.StartStream(ctx, h.sendInput(c, uid, req))
	if err != nil {
		common.FailErr(c, err)
		return
	}

	// SSE headers
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no") // helpful if behind nginx

	// avoid gin writing a JSON response later
	c.Status(http.StatusOK)

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		// can't stream
		fmt.Fprintf(c.Writer, "event: error\ndata: flusher not supported\n\n")
		return
	}

	writeJSON := func(event string, payload any) {
		b, err := json.Marshal(payload)
		if err != nil {
			// last-resort: send a simple error that won't break SSE framing
			fmt.Fprintf(c.Writer, "event: error\ndata: {\"message\":\"json marshal failed\"}\n\n")
			flusher.Flush()
			return
		}
		if event != "" {
			fmt.Fprintf(c.Writer, "event: %s\n", event)
		}
		fmt.Fprintf(c.Writer, "data: %s\n\n", string(b))
		flusher.Flush()
	}

	writeJSON("session", gin.H{
		"type":        "session",
		"session_id":  st.SessionID,
		"new_session": st.NewSession,
	})

	// heartbeat ticker (keeps connections alive)
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	chunks := st.Chunks
	// done is only read once every chunk has been forwarded
	var done <-chan chat.StreamOutcome
	for {
		select {
		case ch, ok := <-chunks:
			if !ok {
				chunks = nil
				done = st.Done
				continue
			}
			writeJSON("chunk", gin.H{
				"type":  "chunk",
				"delta": ch,
			})

		case <-ticker.C:
			writeJSON("ping", gin.H{
				"type": "ping",
				"ts":   time.Now().Unix(),
			})

		case out, ok := <-done:
			if !ok {
				return
			}
			if out.Err != nil {
				if apperr.KindOf(out.Err) == apperr.KindInternal {
					h.log.Error().Err(out.Err).Str("session_id", st.SessionID).Msg("stream turn failed")
				}
				writeJSON("error", gin.H{
					"type":    "error",
					"error":   string(apperr.KindOf(out.Err)),
					"message": streamErrorMessage(out.Err),
				})
				return
			}
			writeJSON("done", gin.H{
				"type":        "done",
				"message_id":  out.Result.MessageID,
				"session_id":  out.Result.SessionID,
				"tokens_used": out.Result.TokensUsed,
				"content":     out.Result.Content,
				"audio_url":   out.Result.AudioURL,
				"rag_context": out.Result.RAGContext,
			})
			return

		case <-ctx.Done():
			return
		}
	}
}

func streamErrorMessage(err error) string {
	if apperr.KindOf(err) == apperr.KindLLMUnavailable {
		return "the character is unavailable right now, please retry"
	}
	return apperr.MessageOf(err)
}

func (h *Handler) ListSessions(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	roleID, ok := uintQuery(c, "role_id")
	if !ok {
		return
	}
	var filter *uint64
	if roleID > 0 {
		filter = &roleID
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	sessions, err := h.ChatSvc.ListSessions(c.Request.Context(), uid, filter, limit)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"sessions": sessions})
}

func (h *Handler) GetSession(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	sess, err := h.ChatSvc.GetSession(c.Request.Context(), uid, c.Param("session_id"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

type updateSessionReq struct {
	Title  *string `json:"title"`
	Status *string `json:"status"`
}

func (h *Handler) UpdateSession(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateSessionReq
	if !bindJSON(c, &req) {
		return
	}
	in := chat.SessionUpdate{Title: req.Title}
	if req.Status != nil {
		st := chat.SessionStatus(strings.ToLower(strings.TrimSpace(*req.Status)))
		in.Status = &st
	}
	sess, err := h.ChatSvc.UpdateSession(c.Request.Context(), uid, c.Param("session_id"), in)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, sess)
}

func (h *Handler) DeleteSession(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	sid := c.Param("session_id")
	if err := h.ChatSvc.DeleteSession(c.Request.Context(), uid, sid); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"session_id": sid, "deleted": true})
}

func (h *Handler) ListChatMessages(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	sessionID := c.Param("session_id")

	limit, _ := strconv.Atoi(c.Query("limit"))
	beforeID, ok := uintQuery(c, "before_id")
	if !ok {
		return
	}

	msgs, err := h.ChatSvc.ListMessages(c.Request.Context(), uid, sessionID, limit, beforeID)
	if err != nil {
		common.FailErr(c, err)
		return
	}

	var nextBeforeID uint64
	if len(msgs) > 0 {
		nextBeforeID = msgs[len(msgs)-1].ID
	}

	common.OK(c, gin.H{
		"messages":       msgs,
		"next_before_id": nextBeforeID,
	})
}

type clearReq struct {
	SessionID string `json:"session_id"`
}

// ClearContext drops the short-term memory of a session; stored messages stay.
func (h *Handler) ClearContext(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req clearReq
	if !bindJSON(c, &req) {
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		common.FailErr(c, apperr.Validation("session_id required"))
		return
	}
	if err := h.ChatSvc.ClearContext(c.Request.Context(), uid, req.SessionID); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"ok": true})
}

type feedbackReq struct {
	RoleID    uint64  `json:"role_id"`
	MessageID *uint64 `json:"message_id"`
	Type      string  `json:"type"`
	Rating    *int    `json:"rating"`
	Reason    string  `json:"reason"`
	Comment   string  `json:"comment"`
}

func (h *Handler) SubmitFeedback(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req feedbackReq
	if !bindJSON(c, &req) {
		return
	}
	if req.RoleID == 0 {
		common.FailErr(c, apperr.Validation("role_id required"))
		return
	}
	fb, err := h.ChatSvc.SubmitFeedback(c.Request.Context(), uid, chat.FeedbackInput{
		RoleID:    req.RoleID,
		MessageID: req.MessageID,
		Type:      chat.FeedbackType(strings.ToLower(strings.TrimSpace(req.Type))),
		Rating:    req.Rating,
		Reason:    req.Reason,
		Comment:   req.Comment,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, fb)
}
