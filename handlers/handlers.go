package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"facerec/classifier"
	"facerec/event"
	"facerec/pipeline"
	"facerec/storage"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

var log = event.Log

// Loader deserializes the classifier file at path.
type Loader func(path string) (*classifier.Classifier, error)

type Options struct {
	Pipeline       *pipeline.Pipeline
	Storage        storage.StorageAPI
	ClassifierFile string // Classifier location inside Storage
	Loader         Loader
	DB             *gorm.DB // Upload history is kept when set
	MaxUploadSize  int64 // Limit for image uploads
	MaxModelSize   int64 // Limit for classifier uploads, none if 0
}

type Handler struct {
	pipeline       *pipeline.Pipeline
	storage        storage.StorageAPI
	classifierFile string
	loader         Loader
	db             *gorm.DB
	maxUploadSize  int64
	maxModelSize   int64
	uploadMutex    sync.Mutex
}

func New(opts Options) *Handler {
	if opts.Loader == nil {
		opts.Loader = classifier.Load
	}
	if opts.MaxUploadSize <= 0 {
		opts.MaxUploadSize = 32 << 20
	}
	return &Handler{
		pipeline:       opts.Pipeline,
		storage:        opts.Storage,
		classifierFile: opts.ClassifierFile,
		loader:         opts.Loader,
		db:             opts.DB,
		maxUploadSize:  opts.MaxUploadSize,
		maxModelSize:   opts.MaxModelSize,
	}
}

func (h *Handler) Register(router gin.IRouter) {
	router.GET("/health", h.Health)
	router.GET("/classifier", h.ClassifierInfo)
	router.POST("/classify", h.Classify)
	router.POST("/embed", h.Embed)
	router.POST("/upload_classifier", h.UploadClassifier)
}

func (h *Handler) Health(c *gin.Context) {
	status := h.pipeline.Status()
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"classifier_loaded": status.Ready,
		"device":            status.Device,
	})
}

// formFile opens the multipart file sent in field. A positive limit caps the request body size.
func (h *Handler) formFile(c *gin.Context, field string, limit int64) (io.ReadCloser, error) {
	if limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
	}
	header, err := c.FormFile(field)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("%w: %q upload exceeds %s", ErrTooLarge, field, humanize.IBytes(uint64(tooLarge.Limit)))
		}
		return nil, fmt.Errorf("%w: no %q file provided: %s", ErrMissingFile, field, err)
	}
	file, err := header.Open()
	if err != nil {
		return nil, err
	}
	log.Debugf("http: upload %s: %s, %d bytes", field, header.Filename, header.Size)
	return file, nil
}
