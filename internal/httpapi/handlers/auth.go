package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-roleplay/internal/apperr"
	"github.com/suPer8Hu/ai-roleplay/internal/common"
	"github.com/suPer8Hu/ai-roleplay/internal/users"
)

// registerReq binds from a form body or JSON, depending on Content-Type.
type registerReq struct {
	Username string `form:"username" json:"username"`
	Email    string `form:"email" json:"email"`
	Password string `form:"password" json:"password"`
	FullName string `form:"full_name" json:"full_name"`
}

func (h *Handler) Register(c *gin.Context) {
	var req registerReq
	if err := c.ShouldBind(&req); err != nil {
		common.FailErr(c, apperr.Validation("invalid request body"))
		return
	}

	u, err := h.Users.Register(c.Request.Context(), users.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, u)
}

type loginReq struct {
	Username string `form:"username" json:"username"`
	Password string `form:"password" json:"password"`
}

func (h *Handler) Login(c *gin.Context) {
	var req loginReq
	if err := c.ShouldBind(&req); err != nil {
		common.FailErr(c, apperr.Validation("invalid request body"))
		return
	}

	res, err := h.Users.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, gin.H{
		"access_token": res.Token,
		"token_type":   "bearer",
		"expires_in":   res.ExpiresIn,
		"user":         res.User,
	})
}

func (h *Handler) Me(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	u, err := h.Users.Get(c.Request.Context(), uid)
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, u)
}

type updateMeReq struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Bio       *string `json:"bio"`
	Email     *string `json:"email"`
}

func (h *Handler) UpdateMe(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}
	var req updateMeReq
	if !bindJSON(c, &req) {
		return
	}
	u, err := h.Users.UpdateProfile(c.Request.Context(), uid, users.ProfileUpdate{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
		Bio:       req.Bio,
		Email:     req.Email,
	})
	if err != nil {
		common.FailErr(c, err)
		return
	}
	common.OK(c, u)
}
