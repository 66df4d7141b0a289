package server

import (
	"context"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/idgen"
	"github.com/ppecam/ppecam/pkg/nn"
	"github.com/ppecam/ppecam/server/aggstore"
	"github.com/ppecam/ppecam/server/config"
	"github.com/ppecam/ppecam/server/detect"
	"github.com/ppecam/ppecam/server/reconcile"
	"github.com/ppecam/ppecam/server/sampler"
	"github.com/ppecam/ppecam/server/session"
)

// Server wires the PPE monitor pipeline together and exposes it over HTTP:
// batch analysis of uploaded videos, the live camera session, and the
// accumulated statistics.
type Server struct {
	Log        logs.Log
	Config     *config.Config
	Vocab      *nn.Vocabulary
	Store      *aggstore.Store
	Detector   *detect.Client
	Reconciler *reconcile.Reconciler
	Session    *session.Controller

	router     *httprouter.Router
	httpServer *http.Server
	wsID       idgen.Uint32 // tags websocket connections in log lines
}

// NewServer builds the pipeline from config. bearer is the upstream
// credential; it is attached server-side and never sent to clients.
func NewServer(logger logs.Log, cfg *config.Config, bearer string) (*Server, error) {
	vocab, err := cfg.LoadVocabulary()
	if err != nil {
		return nil, err
	}

	store := aggstore.NewStore(logger)
	detector := detect.NewClient(logger, cfg.PersonDetectorURL, cfg.PPEDetectorURL, bearer, time.Duration(cfg.DetectTimeoutMS)*time.Millisecond)
	reconciler := reconcile.NewReconciler(logger, vocab)
	reconciler.SetMinConfidence(cfg.MinConfidence)

	openCamera := func() (sampler.FrameSource, error) {
		return sampler.NewCameraSource(cfg.CameraDevice, cfg.JPEGQuality)
	}
	controller := session.NewController(logger, detector, reconciler, store, openCamera, session.Options{
		Interval:           time.Duration(cfg.SampleIntervalMS) * time.Millisecond,
		PresenceConfidence: cfg.PresenceConfidence,
		MissedFrameLimit:   cfg.MissedFrameLimit,
	})

	s := &Server{
		Log:        logger,
		Config:     cfg,
		Vocab:      vocab,
		Store:      store,
		Detector:   detector,
		Reconciler: reconciler,
		Session:    controller,
		router:     httprouter.New(),
	}
	s.registerRoutes()
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) ListenAndServe(port string) error {
	s.Log.Infof("Listening on %v", port)
	s.httpServer = &http.Server{
		Addr:    port,
		Handler: s.router,
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown tears the live session down (releasing the camera) and stops the
// HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Session.Teardown()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
