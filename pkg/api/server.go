package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/mimir-aip/waterquality/pkg/mlmodel"
)

// Options configures the HTTP server
type Options struct {
	Port           string
	CORSOrigins    []string
	MaxUploadBytes int64
	SampleLimit    int
}

// Server provides HTTP API endpoints
type Server struct {
	router     *mux.Router
	handler    http.Handler
	httpServer *http.Server
	opts       Options
	logger     *zap.Logger
}

// NewServer creates a new API server with all routes registered
func NewServer(service *mlmodel.Service, opts Options) *Server {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}

	s := &Server{
		router: mux.NewRouter(),
		opts:   opts,
		logger: zap.L().Named("api"),
	}

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	training := NewTrainingHandler(service, opts.MaxUploadBytes)
	prediction := NewPredictionHandler(service, opts.MaxUploadBytes, opts.SampleLimit)
	modelHandler := NewModelHandler(service)
	dashboard := NewDashboardHandler(service)

	s.router.HandleFunc("/api/health", modelHandler.HandleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/analyze-dataset", training.HandleAnalyze).Methods(http.MethodPost)
	s.router.HandleFunc("/api/train", training.HandleTrain).Methods(http.MethodPost)
	s.router.HandleFunc("/api/training-status", training.HandleStatus).Methods(http.MethodGet)
	s.router.HandleFunc("/api/training-jobs/{id}", training.HandleJob).Methods(http.MethodGet)
	s.router.HandleFunc("/api/training-jobs/{id}", training.HandleCancelJob).Methods(http.MethodDelete)
	s.router.HandleFunc("/api/predict", prediction.HandlePredict).Methods(http.MethodPost)
	s.router.HandleFunc("/api/download-predictions/{filename}", prediction.HandleDownload).Methods(http.MethodGet)
	s.router.HandleFunc("/api/models", modelHandler.HandleList).Methods(http.MethodGet)
	s.router.HandleFunc("/api/models/{version}", modelHandler.HandleGet).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard/latest-training", dashboard.HandleLatestTraining).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard/latest-prediction", dashboard.HandleLatestPrediction).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard/training-history", dashboard.HandleTrainingHistory).Methods(http.MethodGet)
	s.router.HandleFunc("/api/dashboard/summary", dashboard.HandleSummary).Methods(http.MethodGet)

	s.handler = cors.New(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:        fmt.Sprintf(":%s", opts.Port),
		Handler:     s.handler,
		ReadTimeout: 5 * time.Minute,
		// training requests run synchronously
		WriteTimeout: 30 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler returns the root handler including CORS
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until it stops
func (s *Server) Start() error {
	s.logger.Info("Starting API server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
