package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/knowledge"
)

// createSnippetsReq accepts either a single snippet inline or a list under "snippets".
type createSnippetsReq struct {
	RoleID uint64 `json:"role_id"`
	knowledge.SnippetInput
	Snippets []knowledge.SnippetInput `json:"snippets"`
}

func (h *Handler) CreateSnippets(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req createSnippetsReq
	if !bindJSON(c, &req) {
		return
	}
	if req.RoleID == 0 {
		common.FailErr(c, apperr.Validation("role_id required"))
		return
	}
	inputs := req.Snippets
	if len(inputs) == 0 {
		inputs = []knowledge.SnippetInput{req.SnippetInput}
	}

	rows, err := h.Knowledge.Create(c.Request.Context(), uid, req.RoleID, inputs)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"snippets": rows, "count": len(rows)})
}

func (h *Handler) ListSnippets(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	roleID, ok := uintQuery(c, "role_id")
	if !ok {
		return
	}
	if roleID == 0 {
		common.FailErr(c, apperr.Validation("role_id required"))
		return
	}
	rows, err := h.Knowledge.List(c.Request.Context(), uid, roleID)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"snippets": rows})
}

func (h *Handler) DeleteSnippet(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Knowledge.Delete(c.Request.Context(), uid, id); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"id": id, "deleted": true})
}

// UploadDocument ingests a multipart "file" into chunked snippets of role_id.
func (h *Handler) UploadDocument(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, knowledge.MaxDocumentBytes+1<<20)

	fh, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			common.FailErr(c, apperr.Validation("document too large"))
			return
		}
		common.FailErr(c, apperr.Validation("file required"))
		return
	}
	if fh.Size > knowledge.MaxDocumentBytes {
		common.FailErr(c, apperr.Validation("document too large"))
		return
	}
	roleID, err := strconv.ParseUint(c.PostForm("role_id"), 10, 64)
	if err != nil || roleID == 0 {
		common.FailErr(c, apperr.Validation("role_id required"))
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

	rows, err := h.Knowledge.Ingest(c.Request.Context(), uid, roleID, fh.Filename, c.PostForm("title"), data)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"snippets": rows, "count": len(rows)})
}

type ragSearchReq struct {
	RoleID    uint64   `json:"role_id"`
	Query     string   `json:"query"`
	TopK      int      `json:"top_k"`
	Threshold *float64 `json:"threshold"`
}

type ragHit struct {
	ID          uint64                `json:"id"`
	Title       string                `json:"title"`
	Content     string                `json:"content"`
	ContentType knowledge.ContentType `json:"content_type"`
	Score       float64               `json:"score"`
}

func (h *Handler) SearchKnowledge(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req ragSearchReq
	if !bindJSON(c, &req) {
		return
	}
	hits, err := h.Knowledge.Search(c.Request.Context(), uid, req.RoleID, req.Query, req.TopK, req.Threshold)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	out := make([]ragHit, len(hits))
	for i, hit := range hits {
		out[i] = ragHit{
			ID:          hit.Snippet.ID,
			Title:       hit.Snippet.Title,
			Content:     hit.Snippet.Content,
			ContentType: hit.Snippet.ContentType,
			Score:       hit.Score,
		}
	}
	common.OK(c, gin.H{"hits": out})
}
