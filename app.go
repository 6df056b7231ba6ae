package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"facerec/classifier"
	"facerec/config"
	"facerec/db"
	"facerec/event"
	"facerec/faces"
	"facerec/handlers"
	"facerec/models"
	"facerec/pipeline"
	"facerec/storage"
	"facerec/utils"

	"github.com/gin-gonic/autotls"
	"gorm.io/gorm"
)

var log = event.Log

const shutdownTimeout = 10 * time.Second

// app owns every long lived component of the server.
type app struct {
	cfg            config.Config
	pipeline       *pipeline.Pipeline
	storage        storage.StorageAPI
	classifierFile string
	loader         handlers.Loader
	db             *gorm.DB
	router         http.Handler
}

func run(ctx context.Context, cfg config.Config) error {
	event.SetLevel(cfg.LogLevel)
	if err := classifier.InitRuntime(cfg.OnnxRuntimeLib); err != nil {
		return err
	}
	defer classifier.DestroyRuntime()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.close()
	return a.serve(ctx)
}

func newApp(cfg config.Config) (*app, error) {
	device := classifier.SelectDevice(cfg.ComputingDevice)
	log.Infof("server: using device %s", device)

	recognizer, err := faces.NewRecognizer(cfg.FaceModelsDir, cfg.FaceDetectCNN)
	if err != nil {
		return nil, err
	}
	a := &app{
		cfg:            cfg,
		pipeline:       pipeline.New(recognizer, device, cfg.FaceCropSize, cfg.InferenceConcurrency),
		classifierFile: filepath.Base(cfg.ClassifierPath),
		loader:         classifier.Load,
	}
	if a.storage, err = newStorage(cfg); err != nil {
		a.close()
		return nil, err
	}
	a.loadClassifier(device)

	if cfg.DatabaseEnabled() {
		if a.db, err = db.Open(cfg.MySQLDSN, cfg.SQLiteFile); err != nil {
			a.close()
			return nil, err
		}
		if err = models.Init(a.db); err != nil {
			a.close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
	}

	h := handlers.New(handlers.Options{
		Pipeline:       a.pipeline,
		Storage:        a.storage,
		ClassifierFile: a.classifierFile,
		Loader:         a.loader,
		DB:             a.db,
		MaxUploadSize:  int64(cfg.MaxUploadSize),
		MaxModelSize:   int64(cfg.MaxModelSize),
	})
	a.router = handlers.NewRouter(h, cfg.DebugMode)
	return a, nil
}

func newStorage(cfg config.Config) (storage.StorageAPI, error) {
	local := storage.NewDiskStorage(filepath.Dir(cfg.ClassifierPath))
	if !cfg.S3Enabled() {
		return local, nil
	}
	bucket := storage.Bucket{
		Name:     cfg.S3Bucket,
		Path:     cfg.S3Prefix,
		Region:   cfg.S3Region,
		Endpoint: cfg.S3Endpoint,
	}
	if cfg.S3AccessKey != "" {
		bucket.AuthDetails = cfg.S3AccessKey + ":" + cfg.S3SecretKey
	}
	return storage.NewS3Storage(bucket, local)
}

// loadClassifier loads the stored classifier, if any. The server still starts
// without one and classify answers "not ready" until a classifier is uploaded.
func (a *app) loadClassifier(device classifier.Device) {
	if err := a.storage.EnsureLocalFile(a.classifierFile); err != nil {
		if storage.IsNotExist(err) {
			log.Warnf("server: no classifier at %s, upload one to enable /classify", a.cfg.ClassifierPath)
		} else {
			log.Errorf("server: fetching classifier: %s", err)
		}
		return
	}
	path := a.storage.GetFullPath(a.classifierFile)
	loaded, err := a.loader(path)
	if err != nil {
		log.Errorf("server: loading classifier %s: %s", path, err)
		return
	}
	sha, err := utils.Sha512File(path)
	if err != nil {
		log.Warnf("server: hashing classifier %s: %s", path, err)
	}
	a.pipeline.SetClassifier(loaded.To(device), sha)
	log.Infof("server: loaded classifier %s with %d labels", path, len(loaded.Labels()))
}

func (a *app) serve(ctx context.Context) error {
	if a.cfg.TLSDomains != "" {
		return autotls.Run(a.router, strings.Split(a.cfg.TLSDomains, ",")...)
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              a.cfg.BindAddress(),
		Handler:           a.router,
		ReadHeaderTimeout: 30 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		log.Infof("server: listening on %s", server.Addr)
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}
	log.Info("server: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *app) close() {
	a.pipeline.Close()
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}
