package handlers

import (
	"time"

	"facerec/utils"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

// NewRouter builds the gin engine serving h.
func NewRouter(h *Handler, debug bool) *gin.Engine {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	_ = router.SetTrustedProxies(nil)
	router.Use(gin.Recovery(), utils.RequestID, utils.RequestLogger)
	if debug {
		router.Use(utils.ErrorBodyLogger)
	}
	router.Use(cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", utils.RequestIDHeader},
		ExposeHeaders:   []string{"Content-Length", utils.RequestIDHeader},
		MaxAge:          12 * time.Hour,
	}))
	if !debug {
		router.Use(gzip.Gzip(gzip.DefaultCompression))
	}
	router.Use(utils.NoCache)
	h.Register(router)
	return router
}
