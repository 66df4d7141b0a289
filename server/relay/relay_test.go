package relay

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

func TestForwardVerbatim(t *testing.T) {
	sawAuth := ""
	sawBody := ""
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		sawBody = string(body)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte(`{"predictions":[]}`))
	}))
	defer upstream.Close()

	relay := NewRelay(logs.NewTestingLog(t), upstream.URL, upstream.URL, "secret-token")
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/person-detector", "application/json", bytes.NewReader([]byte(`{"dataframe_records":[]}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	// The upstream response comes back untouched, status included,
	// and the bearer credential was attached server-side
	require.Equal(t, http.StatusTeapot, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	require.Equal(t, `{"predictions":[]}`, string(respBody))
	require.Equal(t, "Bearer secret-token", sawAuth)
	require.Equal(t, `{"dataframe_records":[]}`, sawBody)
}

func TestForwardUnreachableUpstream(t *testing.T) {
	relay := NewRelay(logs.NewTestingLog(t), "http://127.0.0.1:1", "http://127.0.0.1:1", "")
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/ppe-detector", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSelfTest(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer user-token", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer good.Close()

	relay := NewRelay(logs.NewTestingLog(t), good.URL, "http://127.0.0.1:1", "server-token")
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/self-test", "application/json", bytes.NewReader([]byte(`{"token":"user-token"}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	result := selfTestResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
	require.Equal(t, "ok", result.Person)
	require.NotEqual(t, "ok", result.PPE)
}

func TestSelfTestRequiresToken(t *testing.T) {
	relay := NewRelay(logs.NewTestingLog(t), "http://127.0.0.1:1", "http://127.0.0.1:1", "")
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/api/self-test", "application/json", bytes.NewReader([]byte(`{}`)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestPing(t *testing.T) {
	relay := NewRelay(logs.NewTestingLog(t), "", "", "")
	srv := httptest.NewServer(relay.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/ping")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
}
