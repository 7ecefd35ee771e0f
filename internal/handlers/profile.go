package handlers

import (
	"fmt"
	"net/http"

	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

type SocialLinkRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url"`
}

type UpdateProfileRequest struct {
	Title       string              `json:"title"`
	Description string              `json:"description"`
	AvatarURL   string              `json:"avatarUrl"`
	BannerURL   string              `json:"bannerUrl"`
	Theme       string              `json:"theme"`
	SocialLinks []SocialLinkRequest `json:"socialLinks"`
}

func (h *Handler) GetProfile(c *gin.Context) {
	id, _ := currentIdentity(c)
	profile, err := h.svc.Profiles.Get(c.Request.Context(), id.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	var req UpdateProfileRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	links := make([]services.SocialLinkInput, 0, len(req.SocialLinks))
	for _, l := range req.SocialLinks {
		links = append(links, services.SocialLinkInput{Platform: l.Platform, URL: l.URL})
	}

	id, _ := currentIdentity(c)
	profile, err := h.svc.Profiles.Update(c.Request.Context(), id.UserID, services.ProfileInput{
		Title:       req.Title,
		Description: req.Description,
		AvatarURL:   req.AvatarURL,
		BannerURL:   req.BannerURL,
		Theme:       req.Theme,
		SocialLinks: links,
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UploadProfileImage returns a handler storing the avatar or banner image.
func (h *Handler) UploadProfileImage(kind services.ProfileImageKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h.limitBody(c, services.ProfileImageLimit)

		header, err := c.FormFile("file")
		if err != nil {
			h.respondError(c, formError(err))
			return
		}
		file, err := header.Open()
		if err != nil {
			h.respondError(c, fmt.Errorf("open upload: %w", err))
			return
		}
		defer file.Close()

		id, _ := currentIdentity(c)
		profile, err := h.svc.Profiles.UploadImage(c.Request.Context(), id, kind, services.UploadInput{
			Body:      file,
			Filename:  header.Filename,
			IPAddress: c.ClientIP(),
		})
		if err != nil {
			h.respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, profile)
	}
}
