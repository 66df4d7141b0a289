package www

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *httprouter.Router {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	Handle(log, router, "GET", "/ok", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendOK(w)
	})
	Handle(log, router, "GET", "/json", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendJSON(w, map[string]int{"n": 7})
	})
	Handle(log, router, "GET", "/bad", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicBadRequestf("Missing %v", "thing")
	})
	Handle(log, router, "GET", "/teapot", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Panic(http.StatusTeapot, "short and stout")
	})
	Handle(log, router, "GET", "/fail", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Check(fmt.Errorf("disk on fire"))
	})
	Handle(log, router, "POST", "/echo", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		body := struct {
			Name string `json:"name"`
		}{}
		ReadJSON(w, r, &body, 1024)
		SendJSON(w, body)
	})
	Handle(log, router, "POST", "/limited", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		b := ReadLimited(w, r, 8)
		SendOK(w)
		_ = b
	})
	return router
}

func get(t *testing.T, router *httprouter.Router, path string) (int, string) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", path, nil))
	body, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(body)
}

func post(t *testing.T, router *httprouter.Router, path, body string) (int, string) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("POST", path, bytes.NewReader([]byte(body))))
	respBody, _ := io.ReadAll(rec.Result().Body)
	return rec.Code, string(respBody)
}

func TestHandleSuccess(t *testing.T) {
	router := newTestRouter(t)
	code, body := get(t, router, "/ok")
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, "OK", body)

	code, body = get(t, router, "/json")
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"n":7}`, body)
}

func TestHandleRecoversHTTPError(t *testing.T) {
	router := newTestRouter(t)
	code, body := get(t, router, "/bad")
	require.Equal(t, http.StatusBadRequest, code)
	require.Equal(t, "Missing thing", body)

	code, body = get(t, router, "/teapot")
	require.Equal(t, http.StatusTeapot, code)
	require.Equal(t, "short and stout", body)
}

func TestHandleRecoversGenericError(t *testing.T) {
	router := newTestRouter(t)
	code, body := get(t, router, "/fail")
	require.Equal(t, http.StatusInternalServerError, code)
	require.Equal(t, "disk on fire", body)
}

func TestReadJSON(t *testing.T) {
	router := newTestRouter(t)
	code, body := post(t, router, "/echo", `{"name":"bob"}`)
	require.Equal(t, http.StatusOK, code)
	require.JSONEq(t, `{"name":"bob"}`, body)

	code, _ = post(t, router, "/echo", `{"name": nope`)
	require.Equal(t, http.StatusBadRequest, code)
}

func TestReadLimited(t *testing.T) {
	router := newTestRouter(t)
	code, _ := post(t, router, "/limited", "12345678")
	require.Equal(t, http.StatusOK, code)

	// One byte over the cap
	code, _ = post(t, router, "/limited", "123456789")
	require.Equal(t, http.StatusInternalServerError, code)
}
