package server

import (
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/www"
	"github.com/ppecam/ppecam/server/aggstore"
	"github.com/ppecam/ppecam/server/sampler"
	"github.com/ppecam/ppecam/server/session"
)

func (s *Server) registerRoutes() {
	handle := func(method, route string, h httprouter.Handle) {
		www.Handle(s.Log, s.router, method, route, h)
	}
	handle("GET", "/api/ping", s.httpPing)
	handle("GET", "/api/stats", s.httpStats)
	handle("GET", "/api/detections", s.httpDetections)
	handle("GET", "/api/alerts", s.httpAlerts)
	handle("GET", "/api/export", s.httpExport)
	handle("POST", "/api/reset", s.httpReset)
	handle("POST", "/api/analyze", s.httpAnalyze)
	handle("GET", "/api/session", s.httpSessionState)
	handle("POST", "/api/session/camera/start", s.httpCameraStart)
	handle("POST", "/api/session/analysis/start", s.httpAnalysisStart)
	handle("POST", "/api/session/analysis/stop", s.httpAnalysisStop)
	handle("POST", "/api/session/teardown", s.httpTeardown)
	handle("GET", "/api/live/ws", s.httpLiveWS)
}

func (s *Server) httpPing(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendOK(w)
}

func (s *Server) httpStats(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Store.Stats(s.Vocab.Classes))
}

func (s *Server) httpDetections(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Store.Detections())
}

func (s *Server) httpAlerts(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Store.Alerts())
}

func (s *Server) httpExport(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, s.Store.Labels(s.Vocab.Classes))
}

func (s *Server) httpReset(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Store.Reset()
	www.SendOK(w)
}

type analyzeResponse struct {
	Frames int            `json:"frames"`
	Stats  aggstore.Stats `json:"stats"`
}

// httpAnalyze accepts a video upload and runs the batch pipeline over it.
// Validation happens before any state is touched: a bad upload leaves the
// store exactly as it was.
func (s *Server) httpAnalyze(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	maxBytes := s.Config.MaxUploadMB * 1024 * 1024
	// Allow some slack for the multipart framing around the file itself
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1024*1024)

	file, header, err := r.FormFile("video")
	if err != nil {
		www.PanicBadRequestf("Invalid upload: %v", err)
	}
	defer file.Close()
	if header.Size > maxBytes {
		www.PanicBadRequestf("Video exceeds the %v MB upload limit", s.Config.MaxUploadMB)
	}
	contentType := header.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "video/") {
		www.PanicBadRequestf("Not a video upload (%v)", contentType)
	}

	// The capture backend wants a file on disk
	tmp, err := os.CreateTemp("", "ppecam-upload-*")
	www.Check(err)
	defer os.Remove(tmp.Name())
	_, err = io.Copy(tmp, file)
	tmp.Close()
	www.Check(err)

	source, err := sampler.NewVideoFileSource(tmp.Name(), s.Config.FileSampleCount, s.Config.JPEGQuality)
	if err != nil {
		www.PanicBadRequestf("Failed to decode video: %v", err)
	}
	defer source.Close()

	s.Store.Reset()
	frames, err := session.RunFile(r.Context(), s.Log, source, s.Detector, s.Reconciler, s.Store)
	if err != nil {
		// Transport failure is terminal for this analysis run
		www.Panic(http.StatusBadGateway, "Analysis aborted: "+err.Error())
	}
	www.SendJSON(w, analyzeResponse{
		Frames: frames,
		Stats:  s.Store.Stats(s.Vocab.Classes),
	})
}

type sessionStateResponse struct {
	State session.State `json:"state"`
}

func (s *Server) httpSessionState(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.SendJSON(w, sessionStateResponse{State: s.Session.State()})
}

func (s *Server) httpCameraStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := s.Session.StartCamera(); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendJSON(w, sessionStateResponse{State: s.Session.State()})
}

func (s *Server) httpAnalysisStart(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := s.Session.StartAnalysis(); err != nil {
		www.PanicBadRequestf("%v", err)
	}
	www.SendJSON(w, sessionStateResponse{State: s.Session.State()})
}

func (s *Server) httpAnalysisStop(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Session.StopAnalysis()
	www.SendJSON(w, sessionStateResponse{State: s.Session.State()})
}

func (s *Server) httpTeardown(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	s.Session.Teardown()
	www.SendJSON(w, sessionStateResponse{State: s.Session.State()})
}
