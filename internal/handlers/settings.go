package handlers

import (
	"net/http"

	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

type UpdateSettingsRequest struct {
	EnableNotifications bool   `json:"enableNotifications"`
	MakeImagesPublic    bool   `json:"makeImagesPublic"`
	EnableDirectLinks   bool   `json:"enableDirectLinks"`
	CustomDomain        string `json:"customDomain"`
}

type EmailChangeRequest struct {
	Email string `json:"email" binding:"required"`
}

type EmailVerifyRequest struct {
	OTP string `json:"otp" binding:"required"`
}

func (h *Handler) GetSettings(c *gin.Context) {
	id, _ := currentIdentity(c)
	settings, err := h.svc.Settings.Get(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req UpdateSettingsRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	settings, err := h.svc.Settings.Update(c.Request.Context(), id.UserID, services.SettingsInput{
		EnableNotifications: req.EnableNotifications,
		MakeImagesPublic:    req.MakeImagesPublic,
		EnableDirectLinks:   req.EnableDirectLinks,
		CustomDomain:        req.CustomDomain,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, settings)
}

func (h *Handler) RequestEmailChange(c *gin.Context) {
	var req EmailChangeRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	if err := h.svc.Auth.RequestEmailChange(c.Request.Context(), id.UserID, req.Email); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) ConfirmEmailChange(c *gin.Context) {
	var req EmailVerifyRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	user, err := h.svc.Auth.ConfirmEmailChange(c.Request.Context(), id.UserID, req.OTP, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "email": user.Email})
}
