package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"twinlab/internal/config"
	"twinlab/internal/llm"
	"twinlab/internal/persona"
)

const testCorpus = `[
  {"id": "p1", "narrative": "Retired teacher.", "attributes": {"age_group": "65+"}},
  {"id": "p2", "narrative": "Software engineer.", "attributes": {"age_group": "25-34"}}
]`

func testServer(t *testing.T) *Server {
	t.Helper()
	store := persona.NewStore(persona.ReaderSource("test", strings.NewReader(testCorpus)))
	require.NoError(t, store.Load())

	cfg := config.Config{}
	cfg.Paths.CheckpointDir = t.TempDir()
	cfg.LLM.ContextLimit = 8192

	return New(cfg, store, llm.NewMockClient("Score: 5\nReason: it suits me."))
}

func doJSON(t *testing.T, router http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	parsed := map[string]any{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	}
	return w, parsed
}

func TestHealthAndPersonaEndpoints(t *testing.T) {
	router := testServer(t).Router()

	w, body := doJSON(t, router, http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), body["personas"])

	w, body = doJSON(t, router, http.MethodGet, "/api/personas", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), body["count"])

	w, body = doJSON(t, router, http.MethodGet, "/api/personas/p1", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "p1", body["id"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/personas/p9", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestStartRunValidation(t *testing.T) {
	router := testServer(t).Router()

	w, _ := doJSON(t, router, http.MethodPost, "/api/runs", `{"selection": {"mode": "all"}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/runs", `{
		"selection": {"mode": "by_id", "ids": ["p9"]},
		"survey": {"name": "s", "questions": [{"text": "Q?"}]}
	}`)
	require.Equal(t, http.StatusNotFound, w.Code)

	w, _ = doJSON(t, router, http.MethodPost, "/api/runs", `{
		"selection": {"mode": "all"},
		"survey": {"name": "s", "questions": []}
	}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSurveyRunLifecycle(t *testing.T) {
	srv := testServer(t)
	router := srv.Router()

	w, body := doJSON(t, router, http.MethodPost, "/api/runs", `{
		"selection": {"mode": "all"},
		"survey": {"name": "attitudes", "questions": [
			{"id": "q1", "text": "I trust new technology.", "kind": "scale"}
		]}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	runID, _ := body["run_id"].(string)
	require.NotEmpty(t, runID)

	srv.mu.Lock()
	state := srv.runs[runID]
	srv.mu.Unlock()
	select {
	case <-state.done:
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	w, body = doJSON(t, router, http.MethodGet, "/api/runs/"+runID+"/progress", "")
	require.Equal(t, http.StatusOK, w.Code)
	progress := body["progress"].(map[string]any)
	require.Equal(t, true, progress["finished"])
	require.Equal(t, float64(2), progress["complete"])

	w, body = doJSON(t, router, http.MethodGet, "/api/runs/"+runID+"/results", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, body["records"], 2)

	w, body = doJSON(t, router, http.MethodGet, "/api/runs/"+runID+"/summary", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, float64(2), body["valid_records"])

	w, _ = doJSON(t, router, http.MethodGet, "/api/runs/nope/progress", "")
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestConfiguredTemperatureReachesModelCalls(t *testing.T) {
	store := persona.NewStore(persona.ReaderSource("test", strings.NewReader(testCorpus)))
	require.NoError(t, store.Load())

	cfg := config.Config{}
	cfg.Paths.CheckpointDir = t.TempDir()
	cfg.LLM.ContextLimit = 8192
	cfg.LLM.Temperature = 0.3

	mock := llm.NewMockClient("Score: 5\nReason: fine.")
	srv := New(cfg, store, mock)
	router := srv.Router()

	waitForRun := func(body map[string]any) {
		t.Helper()
		runID := body["run_id"].(string)
		srv.mu.Lock()
		state := srv.runs[runID]
		srv.mu.Unlock()
		select {
		case <-state.done:
		case <-time.After(5 * time.Second):
			t.Fatal("run did not finish")
		}
	}

	w, body := doJSON(t, router, http.MethodPost, "/api/runs", `{
		"selection": {"mode": "by_id", "ids": ["p1"]},
		"survey": {"name": "s", "questions": [{"text": "I trust new technology.", "kind": "scale"}]}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForRun(body)

	w, body = doJSON(t, router, http.MethodPost, "/api/runs", `{
		"selection": {"mode": "by_id", "ids": ["p2"]},
		"interview": {"name": "i", "mode": "batch", "questions": [{"text": "Tell me about your day."}]}
	}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	waitForRun(body)

	calls := mock.Calls()
	require.Len(t, calls, 2)
	for _, call := range calls {
		require.Equal(t, 0.3, call.Temperature)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	router := testServer(t).Router()
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "twinlab_")
}
