package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/role"
)

func (h *Handler) ListRoles(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	roles, err := h.Roles.List(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"roles": roles})
}

func (h *Handler) SearchRoles(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	roles, err := h.Roles.Search(c.Request.Context(), uid, c.Query("q"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"results": roles})
}

func (h *Handler) GetTemplate(c *gin.Context) {
	t, err := h.Roles.Template(c.Param("name"))
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, t)
}

type createFromTemplateReq struct {
	Name string `form:"name" json:"name"`
}

// CreateFromTemplate takes the template name from the body or the ?name= query.
func (h *Handler) CreateFromTemplate(c *gin.Context) {
	var req createFromTemplateReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBind(&req); err != nil {
			common.FailErr(c, apperr.Validation("invalid request body"))
			return
		}
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = strings.TrimSpace(c.Query("name"))
	}
	if name == "" {
		common.FailErr(c, apperr.Validation("name required"))
		return
	}

	r, created, err := h.Roles.CreateFromTemplate(c.Request.Context(), name)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"role": r, "created": created})
}

type createRoleReq struct {
	Name         string     `json:"name"`
	DisplayName  string     `json:"display_name"`
	Description  string     `json:"description"`
	SystemPrompt string     `json:"system_prompt"`
	AvatarURL    string     `json:"avatar_url"`
	Category     string     `json:"category"`
	Tags         []string   `json:"tags"`
	Voice        role.Voice `json:"voice"`
	IsPublic     *bool      `json:"is_public"`
}

func (h *Handler) CreateRole(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req createRoleReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.Roles.Create(c.Request.Context(), uid, role.CreateInput{
		Name:         req.Name,
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		AvatarURL:    req.AvatarURL,
		Category:     req.Category,
		Tags:         req.Tags,
		Voice:        req.Voice,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, r)
}

func (h *Handler) GetRole(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	r, err := h.Roles.Get(c.Request.Context(), uid, id)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, r)
}

type updateRoleReq struct {
	DisplayName  *string     `json:"display_name"`
	Description  *string     `json:"description"`
	SystemPrompt *string     `json:"system_prompt"`
	AvatarURL    *string     `json:"avatar_url"`
	Category     *string     `json:"category"`
	Tags         *[]string   `json:"tags"`
	Voice        *role.Voice `json:"voice"`
	IsPublic     *bool       `json:"is_public"`
}

func (h *Handler) UpdateRole(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req updateRoleReq
	if !bindJSON(c, &req) {
		return
	}
	r, err := h.Roles.Update(c.Request.Context(), uid, id, role.UpdateInput{
		DisplayName:  req.DisplayName,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		AvatarURL:    req.AvatarURL,
		Category:     req.Category,
		Tags:         req.Tags,
		Voice:        req.Voice,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, r)
}

func (h *Handler) DeleteRole(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := h.Roles.Disable(c.Request.Context(), uid, id); err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{"id": id, "deleted": true})
}
