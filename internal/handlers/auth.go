package handlers

import (
	"fmt"
	"net/http"

	"anonhost/internal/apperr"
	"anonhost/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

type RequestCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Type  string `json:"type"`
}

type VerifyCodeRequest struct {
	Email string `json:"email" binding:"required"`
	Code  string `json:"code" binding:"required"`
}

func bindJSON(c *gin.Context, dst interface{}) error {
	if err := c.ShouldBindJSON(dst); err != nil {
		return fmt.Errorf("%s: %w", err.Error(), apperr.ErrValidation)
	}
	return nil
}

func (h *Handler) RequestCode(c *gin.Context) {
	var req RequestCodeRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	if err := h.svc.Auth.RequestCode(c.Request.Context(), req.Email, models.OTPType(req.Type)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) VerifyCode(c *gin.Context) {
	var req VerifyCodeRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	user, created, err := h.svc.Auth.VerifyCode(c.Request.Context(), req.Email, req.Code, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		h.respondError(c, fmt.Errorf("save session: %w", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": user, "created": created})
}

func (h *Handler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		h.respondError(c, fmt.Errorf("save session: %w", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) Me(c *gin.Context) {
	id, _ := currentIdentity(c)
	c.JSON(http.StatusOK, id)
}
