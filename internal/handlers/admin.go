package handlers

import (
	"fmt"
	"net/http"
	"strconv"

	"anonhost/internal/apperr"
	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

type UpdateUserFlagsRequest struct {
	Admin   *bool `json:"admin"`
	Premium *bool `json:"premium"`
}

func (h *Handler) AdminListUsers(c *gin.Context) {
	users, err := h.svc.Admin.ListUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, users)
}

func (h *Handler) AdminUpdateUser(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		h.respondError(c, fmt.Errorf("invalid user id: %w", apperr.ErrValidation))
		return
	}

	var req UpdateUserFlagsRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	actor, _ := currentIdentity(c)
	user, err := h.svc.Admin.UpdateFlags(c.Request.Context(), actor, uint(userID), services.UserFlags{
		Admin:   req.Admin,
		Premium: req.Premium,
	}, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func (h *Handler) AdminDeleteMedia(c *gin.Context) {
	actor, _ := currentIdentity(c)
	if err := h.svc.Media.Delete(c.Request.Context(), actor, c.Param("id"), c.ClientIP()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type AdminEmailRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

func (h *Handler) AdminSendEmail(c *gin.Context) {
	var req AdminEmailRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	actor, _ := currentIdentity(c)
	err := h.svc.Admin.SendEmail(c.Request.Context(), actor, services.AdminEmailInput{
		To:      req.To,
		Subject: req.Subject,
		Message: req.Message,
	}, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
