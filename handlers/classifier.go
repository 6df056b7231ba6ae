package handlers

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"

	"facerec/models"
	"facerec/pipeline"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
)

const recentUploads = 10

type ClassifierResponse struct {
	Labels   []string                  `json:"labels"`
	Device   string                    `json:"device"`
	Sha512   string                    `json:"sha512"`
	LoadedAt int64                     `json:"loaded_at"`
	Uploads  []models.ClassifierUpload `json:"uploads,omitempty"`
}

// UploadClassifier stores the "model" upload as the classifier file and loads it.
// The file on disk is replaced before loading, so a malformed upload stays on disk
// while the previous classifier keeps serving.
func (h *Handler) UploadClassifier(c *gin.Context) {
	file, err := h.formFile(c, "model", h.maxModelSize)
	if err != nil {
		abortWith(c, err)
		return
	}
	defer file.Close()

	h.uploadMutex.Lock()
	defer h.uploadMutex.Unlock()

	hash := sha512.New()
	size, err := h.storage.Save(h.classifierFile, io.TeeReader(file, hash))
	if err != nil {
		abortWith(c, fmt.Errorf("saving classifier: %w", err))
		return
	}
	upload := models.ClassifierUpload{
		Size:   size,
		Sha512: hex.EncodeToString(hash.Sum(nil)),
		Status: models.UploadLoaded,
	}

	loaded, err := h.loader(h.storage.GetFullPath(h.classifierFile))
	if err != nil {
		upload.Status = models.UploadFailed
		upload.Error = err.Error()
		h.record(&upload)
		abortWith(c, fmt.Errorf("loading classifier: %w", err))
		return
	}
	upload.Labels = len(loaded.Labels())
	h.pipeline.SetClassifier(loaded.To(h.pipeline.Device()), upload.Sha512)
	h.record(&upload)

	if err := h.storage.UpdateFile(h.classifierFile, "application/octet-stream"); err != nil {
		log.Errorf("classifier: mirroring upload: %s", err)
	}
	log.Infof("classifier: uploaded %s with %d labels", humanize.Bytes(uint64(size)), upload.Labels)
	c.JSON(http.StatusOK, UploadedMessage)
}

// ClassifierInfo describes the classifier in use and, with a database, the latest uploads.
func (h *Handler) ClassifierInfo(c *gin.Context) {
	status := h.pipeline.Status()
	if !status.Ready {
		abortWith(c, pipeline.ErrNotReady)
		return
	}
	info := ClassifierResponse{
		Labels:   status.Labels,
		Device:   string(status.Device),
		Sha512:   status.Sha512,
		LoadedAt: status.LoadedAt.Unix(),
	}
	if h.db != nil {
		uploads, err := models.RecentUploads(h.db, recentUploads)
		if err != nil {
			log.Errorf("classifier: loading upload history: %s", err)
		}
		info.Uploads = uploads
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) record(upload *models.ClassifierUpload) {
	if h.db == nil {
		return
	}
	if err := upload.Create(h.db); err != nil {
		log.Errorf("classifier: recording upload: %s", err)
	}
}
