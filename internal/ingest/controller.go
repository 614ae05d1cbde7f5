// Package ingest is the HTTP service the collection app registers with and
// uploads its sensor recordings to.
package ingest

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chrissnell/tmdtools/internal/datadir"
	"github.com/chrissnell/tmdtools/internal/log"
	"github.com/chrissnell/tmdtools/pkg/responseformat"
)

// DefaultMaxUploadBytes bounds the size of one uploaded recording.
const DefaultMaxUploadBytes = 256 << 20

// Controller represents the upload service
type Controller struct {
	ctx            context.Context
	wg             *sync.WaitGroup
	dataDir        string
	registry       *datadir.Registry
	formatter      *responseformat.Formatter
	logger         *zap.SugaredLogger
	now            func() time.Time
	random         io.Reader
	MaxUploadBytes int64
	Server         http.Server
}

// NewController creates the upload service storing files under dataDir and
// users in its uids.json registry
func NewController(ctx context.Context, wg *sync.WaitGroup, dataDir, listenAddr string, port int, logger *zap.SugaredLogger) (*Controller, error) {
	dir, err := datadir.Open(dataDir)
	if err != nil {
		return nil, fmt.Errorf("error loading user registry: %v", err)
	}

	if listenAddr == "" {
		logger.Info("server.listen_addr not provided; defaulting to 0.0.0.0 (all interfaces)")
		listenAddr = "0.0.0.0"
	}
	if port == 0 {
		logger.Info("server.port not provided; defaulting to 8000")
		port = 8000
	}

	ctrl := &Controller{
		ctx:            ctx,
		wg:             wg,
		dataDir:        dataDir,
		registry:       dir.Registry,
		formatter:      responseformat.NewFormatter(),
		logger:         logger,
		now:            time.Now,
		random:         rand.Reader,
		MaxUploadBytes: DefaultMaxUploadBytes,
	}
	ctrl.Server.Addr = fmt.Sprintf("%v:%v", listenAddr, port)
	ctrl.Server.Handler = ctrl.Router()
	return ctrl, nil
}

// Router returns the HTTP routes of the service
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(c.loggingMiddleware)

	router.HandleFunc("/hello", c.Hello).Methods(http.MethodGet)
	router.HandleFunc("/register", c.Register).Methods(http.MethodPost)
	router.HandleFunc("/upload", c.Upload).Methods(http.MethodPost)

	return router
}

// StartController starts serving until the controller's context is cancelled
func (c *Controller) StartController() error {
	log.Infof("Starting upload server on %s...", c.Server.Addr)
	c.wg.Add(1)

	go func() {
		defer c.wg.Done()
		if err := c.Server.ListenAndServe(); err != http.ErrServerClosed {
			log.Errorf("upload server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the upload server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		c.Server.Shutdown(shutdownCtx)
	}()

	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (c *Controller) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		c.logger.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"remote", r.RemoteAddr,
			"duration", time.Since(started))
	})
}
