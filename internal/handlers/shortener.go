package handlers

import (
	"net/http"
	"strconv"

	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

type CreateShortlinkRequest struct {
	URL       string `json:"url" binding:"required"`
	Title     string `json:"title"`
	Public    bool   `json:"public"`
	ExpiresIn int    `json:"expiresIn"` // days
}

type UpdateShortlinkRequest struct {
	URL       *string `json:"url"`
	Title     *string `json:"title"`
	Public    *bool   `json:"public"`
	ExpiresIn *int    `json:"expiresIn"`
}

func (h *Handler) CreateShortlink(c *gin.Context) {
	var req CreateShortlinkRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	link, err := h.svc.Shortlinks.Create(c.Request.Context(), id, services.CreateShortlinkInput{
		URL:           req.URL,
		Title:         req.Title,
		Public:        req.Public,
		ExpiresInDays: req.ExpiresIn,
		IPAddress:     c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shortlink": link,
		"short_url": h.cfg.BaseURL + "/s/" + link.ID,
	})
}

func (h *Handler) ListShortlinks(c *gin.Context) {
	id, _ := currentIdentity(c)
	links, err := h.svc.Shortlinks.List(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, links)
}

func (h *Handler) GetShortlink(c *gin.Context) {
	id, _ := currentIdentity(c)
	link, err := h.svc.Shortlinks.Get(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) UpdateShortlink(c *gin.Context) {
	var req UpdateShortlinkRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	link, err := h.svc.Shortlinks.Update(c.Request.Context(), id, c.Param("id"), services.UpdateShortlinkInput{
		URL:           req.URL,
		Title:         req.Title,
		Public:        req.Public,
		ExpiresInDays: req.ExpiresIn,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, link)
}

func (h *Handler) DeleteShortlink(c *gin.Context) {
	id, _ := currentIdentity(c)
	if err := h.svc.Shortlinks.Delete(c.Request.Context(), id, c.Param("id"), c.ClientIP()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (h *Handler) RedirectShortlink(c *gin.Context) {
	target, err := h.svc.Shortlinks.Resolve(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Redirect(http.StatusFound, target)
}

// ShortlinkQR renders a QR code for the short URL. Query: size, fg, bg,
// format (png or svg).
func (h *Handler) ShortlinkQR(c *gin.Context) {
	link, err := h.svc.Shortlinks.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	size, _ := strconv.Atoi(c.Query("size"))
	opts := services.QROptions{
		Content: h.cfg.BaseURL + "/s/" + link.ID,
		Size:    size,
		FgColor: c.Query("fg"),
		BgColor: c.Query("bg"),
	}

	if c.Query("format") == "svg" {
		svg, err := h.svc.QR.SVG(opts)
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.Data(http.StatusOK, "image/svg+xml", []byte(svg))
		return
	}

	png, err := h.svc.QR.PNG(opts)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}
