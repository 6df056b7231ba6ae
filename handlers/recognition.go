package handlers

import (
	"image"
	"io"
	"net/http"

	"facerec/utils"

	"github.com/gin-gonic/gin"
)

// Classify returns the label of the face in the "image" upload.
func (h *Handler) Classify(c *gin.Context) {
	img, ok := h.readImage(c)
	if !ok {
		return
	}
	label, err := h.pipeline.Classify(c.Request.Context(), img)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, label)
}

// Embed returns the embedding of the face in the "image" upload.
func (h *Handler) Embed(c *gin.Context) {
	img, ok := h.readImage(c)
	if !ok {
		return
	}
	embedding, err := h.pipeline.Embed(c.Request.Context(), img)
	if err != nil {
		abortWith(c, err)
		return
	}
	c.JSON(http.StatusOK, embedding)
}

func (h *Handler) readImage(c *gin.Context) (image.Image, bool) {
	file, err := h.formFile(c, "image", h.maxUploadSize)
	if err != nil {
		abortWith(c, err)
		return nil, false
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, Response{Error: err.Error()})
		return nil, false
	}
	img, format, err := utils.DecodeImage(data)
	if err != nil {
		abortWith(c, err)
		return nil, false
	}
	log.Debugf("http: image %s, %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())
	return img, true
}
