package httputil

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/R3E-Network/cause_registry/internal/errors"
	"github.com/R3E-Network/cause_registry/internal/logging"
)

func TestNewClientDefaults(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://localhost:8080/"})

	if client.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", client.baseURL)
	}
	if client.maxRetries != 2 {
		t.Errorf("default maxRetries = %d, want 2", client.maxRetries)
	}
	if client.httpClient.Timeout != 30*time.Second {
		t.Errorf("default timeout = %v, want 30s", client.httpClient.Timeout)
	}
}

func TestClientSendsBearerAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok" {
			t.Errorf("Authorization = %q", got)
		}
		var body map[string]uint64
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["amount"] != 7 {
			t.Errorf("unexpected body %v (%v)", body, err)
		}
		WriteJSON(w, http.StatusCreated, map[string]string{"reference": "r-1"})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, Token: "tok"})
	var out map[string]string
	if err := client.Post(context.Background(), "/causes/1/donations", map[string]uint64{"amount": 7}, &out); err != nil {
		t.Fatalf("post: %v", err)
	}
	if out["reference"] != "r-1" {
		t.Fatalf("unexpected response %v", out)
	}
}

func TestClientDecodesErrorEnvelope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, r, errors.New(errors.CodeCauseNotFound, "cause not found", http.StatusNotFound, nil))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL})
	err := client.Get(context.Background(), "/causes/9", nil)

	var apiErr *APIError
	if !stderrors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Body.Code != "CAUSE_NOT_FOUND" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientRetriesUnavailableGets(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		WriteJSON(w, http.StatusOK, map[string][]uint64{"ids": {1}})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, MaxRetries: 1})
	var out map[string][]uint64
	if err := client.Get(context.Background(), "/causes", &out); err != nil {
		t.Fatalf("get: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("expected 2 calls, got %d", calls)
	}
}

func TestWriteErrorWrapsPlainErrors(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(logging.WithTraceID(req.Context(), "trace-1"))

	WriteError(rec, req, stderrors.New("boom"))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	var env ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != "INTERNAL" || env.Error.TraceID != "trace-1" {
		t.Fatalf("unexpected envelope %+v", env)
	}
}
