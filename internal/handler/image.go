package handler

import (
	"errors"
	"net/http"
	"path"
	"regexp"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	httputil "chatrelay/internal/pkg/http"
	"chatrelay/internal/pkg/storage"
	"chatrelay/internal/pkg/userkey"
)

var imageFilePattern = regexp.MustCompile(`^[0-9]+\.(jpg|png)$`)

// ImageHandler 对外提供用户上传的图片，供视觉模型按 URL 读取
type ImageHandler struct {
	storage storage.Storage
}

// NewImageHandler 创建图片处理器
func NewImageHandler(store storage.Storage) *ImageHandler {
	return &ImageHandler{storage: store}
}

// Get 读取图片
// @Summary 获取上传的图片
// @Tags images
// @Produce image/jpeg
// @Param hash path string true "用户键"
// @Param file path string true "文件名"
// @Success 200 {file} binary
// @Failure 400 {object} httputil.ErrorResponse
// @Failure 404 {object} httputil.ErrorResponse
// @Router /uploads/{hash}/{file} [get]
func (h *ImageHandler) Get(c *gin.Context) {
	hash, file := c.Param("hash"), c.Param("file")
	if !userkey.Valid(hash) || !imageFilePattern.MatchString(file) {
		c.JSON(http.StatusBadRequest, httputil.NewErrorResponse(httputil.CodeInvalidPath, "Invalid image path"))
		return
	}

	body, err := h.storage.Download(c.Request.Context(), path.Join(storage.UploadPrefix, hash, file))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, httputil.NewErrorResponse(httputil.CodeNotFound, "Image not found"))
			return
		}
		log.Error().Err(err).Str("file", file).Msg("failed to read image")
		c.JSON(http.StatusInternalServerError, httputil.NewErrorResponse(httputil.CodeInternal, "Failed to read image"))
		return
	}
	defer body.Close()

	contentType := "image/jpeg"
	if path.Ext(file) == ".png" {
		contentType = "image/png"
	}
	c.Header("Cache-Control", "public, max-age=86400")
	c.DataFromReader(http.StatusOK, -1, contentType, body, nil)
}
