package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"

	"anonhost/internal/apperr"
	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

// multipartOverhead leaves room for form fields around the file part.
const multipartOverhead = services.MiB

func (h *Handler) limitBody(c *gin.Context, fileLimit int64) {
	if fileLimit < 0 {
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, fileLimit+multipartOverhead)
}

// formError maps multipart parsing failures to the error taxonomy.
func formError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return fmt.Errorf("request body exceeds %d bytes: %w", tooLarge.Limit, apperr.ErrTooLarge)
	}
	return fmt.Errorf("%s: %w", err.Error(), apperr.ErrValidation)
}

func (h *Handler) UploadMedia(c *gin.Context) {
	id, _ := currentIdentity(c)
	h.limitBody(c, services.FileLimit(id))

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

	res, err := h.svc.Upload.Upload(c.Request.Context(), id, services.UploadInput{
		Body:        file,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ListMedia(c *gin.Context) {
	id, _ := currentIdentity(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	result, err := h.svc.Media.ListByOwner(c.Request.Context(), id.UserID, services.ListMediaQuery{
		Page:  page,
		Limit: limit,
		Sort:  c.DefaultQuery("sort", "createdAt"),
		Order: c.DefaultQuery("order", "desc"),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}

	storageLimit := int64(-1)
	if !id.Admin && !id.Premium {
		storageLimit = services.FreeQuota
	}

	c.JSON(http.StatusOK, gin.H{
		"media": result.Items,
		"pagination": gin.H{
			"total": result.Total,
			"page":  result.Page,
			"limit": result.Limit,
			"pages": result.TotalPages,
		},
		"stats": gin.H{
			"total_uploads": result.Total,
			"storage_used":  result.TotalSize,
			"storage_limit": storageLimit,
			"is_admin":      id.Admin,
		},
	})
}

func (h *Handler) DeleteMedia(c *gin.Context) {
	id, _ := currentIdentity(c)
	if err := h.svc.Media.Delete(c.Request.Context(), id, c.Param("id"), c.ClientIP()); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// StorageUpload writes a raw file under {userId}[/{type}s]/{fileId}{ext}.
func (h *Handler) StorageUpload(c *gin.Context) {
	h.limitBody(c, services.PremiumFileLimit)

	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, formError(err))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	file, err := header.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		h.respondError(c, fmt.Errorf("read upload: %w", err))
		return
	}

	in := services.StorageUploadInput{
		Data:     data,
		FileID:   c.PostForm("fileId"),
		Filename: c.PostForm("filename"),
		UserID:   c.PostForm("userId"),
		Category: c.PostForm("type"),
	}
	if id, ok := currentIdentity(c); ok {
		in.Requester = &id
	}

	res, err := h.svc.Upload.StoreRaw(c.Request.Context(), in)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// deliveryCSP keeps uploaded documents from running script on this origin.
const deliveryCSP = "default-src 'none'; img-src 'self'; media-src 'self'"

// activeContent types can execute script when rendered inline.
var activeContent = map[string]bool{
	"text/html":             true,
	"application/xhtml+xml": true,
	"image/svg+xml":         true,
	"text/xml":              true,
	"application/xml":       true,
}

func (h *Handler) ServeObject(c *gin.Context) {
	obj, err := h.svc.Delivery.Serve(c.Request.Context(), c.Param("path"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer obj.Body.Close()

	headers := map[string]string{
		"Cache-Control":           "public, max-age=31536000",
		"X-Content-Type-Options":  "nosniff",
		"Content-Security-Policy": deliveryCSP,
	}
	mediaType, _, _ := mime.ParseMediaType(obj.ContentType)
	if activeContent[mediaType] {
		headers["Content-Disposition"] = "attachment"
	}
	c.DataFromReader(http.StatusOK, obj.Size, obj.ContentType, obj.Body, headers)
}
