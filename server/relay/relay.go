package relay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/go-chi/httprate"
	"github.com/julienschmidt/httprouter"
	"github.com/ppecam/ppecam/pkg/requests"
	"github.com/ppecam/ppecam/pkg/www"
	"github.com/ppecam/ppecam/server/detect"
)

// Relay is the local intermediary between the browser and the two detection
// services. It forwards dataframe_records requests upstream with a bearer
// credential attached server-side, and returns the upstream JSON verbatim.
// No business logic lives here.

// A single frame arrives base64-encoded inside a JSON body, so allow a
// generous margin over the expected JPEG size.
const maxRequestBodyBytes = 32 * 1024 * 1024

type Relay struct {
	log        logs.Log
	personURL  string
	ppeURL     string
	bearer     string
	client     *http.Client
	router     *httprouter.Router
	httpServer *http.Server
}

func NewRelay(logger logs.Log, personURL, ppeURL, bearer string) *Relay {
	p := &Relay{
		log:       logger,
		personURL: personURL,
		ppeURL:    ppeURL,
		bearer:    bearer,
		client:    &http.Client{Timeout: 60 * time.Second},
		router:    httprouter.New(),
	}

	ratelimited := func(method, route string, handle http.HandlerFunc, requestLimit int, windowLength time.Duration) {
		// A unique limiter per endpoint, keyed by caller IP
		limited := httprate.Limit(requestLimit, windowLength, httprate.WithKeyFuncs(httprate.KeyByIP))
		www.Handle(p.log, p.router, method, route, func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
			limited(http.HandlerFunc(handle)).ServeHTTP(w, r)
		})
	}

	ratelimited("POST", "/api/person-detector", func(w http.ResponseWriter, r *http.Request) { p.forward(w, r, p.personURL) }, 120, time.Minute)
	ratelimited("POST", "/api/ppe-detector", func(w http.ResponseWriter, r *http.Request) { p.forward(w, r, p.ppeURL) }, 120, time.Minute)
	ratelimited("POST", "/api/self-test", p.httpSelfTest, 10, time.Minute)
	www.Handle(p.log, p.router, "GET", "/api/ping", func(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
		www.SendOK(w)
	})
	return p
}

// Handler exposes the router for tests and for embedding.
func (p *Relay) Handler() http.Handler {
	return p.router
}

func (p *Relay) ListenAndServe(port string) error {
	p.log.Infof("Relay listening on %v", port)
	p.httpServer = &http.Server{
		Addr:    port,
		Handler: p.router,
	}
	return p.httpServer.ListenAndServe()
}

func (p *Relay) Shutdown(ctx context.Context) error {
	if p.httpServer == nil {
		return nil
	}
	return p.httpServer.Shutdown(ctx)
}

// forward sends the request body upstream and copies the upstream response
// back verbatim, status code included. The bearer credential never leaves
// the server side.
func (p *Relay) forward(w http.ResponseWriter, r *http.Request, upstreamURL string) {
	body := www.ReadLimited(w, r, maxRequestBodyBytes)
	req, err := http.NewRequestWithContext(r.Context(), "POST", upstreamURL, bytes.NewReader(body))
	www.Check(err)
	req.Header.Set("Content-Type", "application/json")
	if p.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+p.bearer)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		www.Panic(http.StatusBadGateway, "Upstream detector unreachable: "+err.Error())
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	w.WriteHeader(resp.StatusCode)
	io.Copy(w, resp.Body)
}

type selfTestRequest struct {
	Token string `json:"token"`
}

type selfTestResponse struct {
	Person string `json:"person"`
	PPE    string `json:"ppe"`
}

// httpSelfTest is a connectivity check only: it calls both upstream URLs
// directly with a user-supplied bearer token and an empty record list, and
// reports per-service reachability.
func (p *Relay) httpSelfTest(w http.ResponseWriter, r *http.Request) {
	req := selfTestRequest{}
	www.ReadJSON(w, r, &req, 64*1024)
	if req.Token == "" {
		www.PanicBadRequestf("Must specify token")
	}
	headers := http.Header{"Authorization": []string{"Bearer " + req.Token}}
	probe := func(url string) string {
		_, err := requests.RequestJSON[map[string]any](r.Context(), p.client, "POST", url, headers, &detect.Request{DataframeRecords: []detect.Record{}})
		if err != nil {
			return err.Error()
		}
		return "ok"
	}
	www.SendJSON(w, selfTestResponse{
		Person: probe(p.personURL),
		PPE:    probe(p.ppeURL),
	})
}
