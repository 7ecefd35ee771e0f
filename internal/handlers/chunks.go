package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"anonhost/internal/services"

	"github.com/gin-gonic/gin"
)

type ReassembleRequest struct {
	FileID      string `json:"fileId" binding:"required"`
	FileName    string `json:"fileName" binding:"required"`
	TotalChunks int    `json:"totalChunks" binding:"required"`
	TotalSize   int64  `json:"totalSize" binding:"required"`
}

// UploadChunk stores one part of a large upload sent as multipart fields
// chunk, chunkIndex, totalChunks and fileId.
func (h *Handler) UploadChunk(c *gin.Context) {
	h.limitBody(c, services.MaxChunkSize)

	header, err := c.FormFile("chunk")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.respondError(c, formError(err))
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}
	fileID := c.PostForm("fileId")
	index, indexErr := strconv.Atoi(c.PostForm("chunkIndex"))
	total, totalErr := strconv.Atoi(c.PostForm("totalChunks"))
	if fileID == "" || indexErr != nil || totalErr != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.respondError(c, fmt.Errorf("open chunk: %w", err))
		return
	}
	defer file.Close()

	id, _ := currentIdentity(c)
	status, err := h.svc.Chunks.PutChunk(c.Request.Context(), id, services.ChunkInput{
		FileID:      fileID,
		Index:       index,
		TotalChunks: total,
		Body:        file,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *Handler) ReassembleUpload(c *gin.Context) {
	var req ReassembleRequest
	if err := bindJSON(c, &req); err != nil {
		h.respondError(c, err)
		return
	}

	id, _ := currentIdentity(c)
	res, err := h.svc.Chunks.Reassemble(c.Request.Context(), id, services.ReassembleInput{
		FileID:      req.FileID,
		Filename:    req.FileName,
		TotalChunks: req.TotalChunks,
		TotalSize:   req.TotalSize,
		IPAddress:   c.ClientIP(),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
