package handlers

import (
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
)

// audioFormat maps sniffed upload types to the extension providers expect.
func audioFormat(data []byte) (string, bool) {
	m := mimetype.Detect(data)
	for mt := m; mt != nil; mt = mt.Parent() {
		if strings.HasPrefix(mt.String(), "audio/") || mt.Is("video/webm") || mt.Is("video/mp4") {
			return strings.TrimPrefix(m.Extension(), "."), true
		}
	}
	return "", false
}

// SpeechToText transcribes a multipart "file" upload.
func (h *Handler) SpeechToText(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxAudioBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.FailErr(c, apperr.Validation("audio file too large"))
			return
		}
		common.FailErr(c, apperr.Validation("file required"))
		return
	}
	if fh.Size > h.maxAudioBytes {
		common.FailErr(c, apperr.Validation("audio file too large"))
		return
	}
	f, err := fh.Open()
	if err != nil {
		common.FailErr(c, err)
		return
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	if len(data) == 0 {
		common.FailErr(c, apperr.Validation("audio file is empty"))
		return
	}
	format, ok := audioFormat(data)
	if !ok {
		common.FailErr(c, apperr.Validation("unsupported audio type"))
		return
	}

	tr, err := h.ChatSvc.Transcribe(c.Request.Context(), uid, data, fh.Filename, format)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, tr)
}

type ttsReq struct {
	Content string `json:"content"`
	Voice   string `json:"voice"`
	Format  string `json:"format"`
}

func (h *Handler) TextToSpeech(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req ttsReq
	if !bindJSON(c, &req) {
		return
	}
	audio, err := h.ChatSvc.Synthesize(c.Request.Context(), uid, req.Content, req.Voice, req.Format)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"audio_base64": base64.StdEncoding.EncodeToString(audio.Data),
		"format":       audio.Format,
		"content_type": audio.ContentType(),
	})
}
