package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type CreateAPIKeyRequest struct {
	Name string `json:"name" binding:"required"`
}

func (h *Handler) CreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	key, err := h.svc.APIKeys.Create(c.Request.Context(), id, req.Name, c.ClientIP())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, key)
}

func (h *Handler) ListAPIKeys(c *gin.Context) {
	id, _ := currentIdentity(c)
	keys, err := h.svc.APIKeys.List(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, keys)
}

func (h *Handler) DeleteAPIKey(c *gin.Context) {
	id, _ := currentIdentity(c)
	if err := h.svc.APIKeys.Delete(c.Request.Context(), id, c.Param("id"), c.ClientIP()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
