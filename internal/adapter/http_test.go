package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAdapter_GenerateShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		_ = json.NewEncoder(w).Encode(generateResponse{Response: "echo:" + req.Prompt})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("ollama", srv.URL, ShapeGenerate, "", 5, 0, 3, nil)
	out, err := a.Invoke(context.Background(), Request{Prompt: "hi", Model: "llama3"})
	require.NoError(t, err)
	assert.Equal(t, "echo:hi", out)
}

func TestHTTPAdapter_OpenAIHostedWithEmptyKeySendsUnauthenticatedRequest(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := NewHTTPAdapter("openai-hosted", srv.URL, ShapeOpenAICompatHosted, "", 5, 0, 1, nil)
	_, err := a.Invoke(context.Background(), Request{Prompt: "hi", Model: "gpt"})
	require.Error(t, err, "a missing key fails observably at the server, not locally")
	assert.Equal(t, "Bearer ", gotAuth, "the header is always emitted, even with an empty key")
}

func TestHTTPAdapter_OpenAIHostedWithKeySetsBearerHeader(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "ok"}}}})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("openai-hosted", srv.URL, ShapeOpenAICompatHosted, "sk-test", 5, 0, 1, nil)
	out, err := a.Invoke(context.Background(), Request{Prompt: "hi", Model: "gpt"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "Bearer sk-test", gotAuth)
}

func TestHTTPAdapter_RetriesOn503ThenSucceeds(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(chatResponse{Choices: []struct {
			Message chatMessage `json:"message"`
		}{{Message: chatMessage{Role: "assistant", Content: "ok"}}}})
	}))
	defer srv.Close()

	a := NewHTTPAdapter("local-chat", srv.URL, ShapeOpenAICompatLocal, "", 5, 0, 3, nil)
	out, err := a.Invoke(context.Background(), Request{Prompt: "hi", Model: "m"})
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.GreaterOrEqual(t, attempts, 2)
}

func TestHTTPAdapter_DoesNotRetryOn400(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	a := NewHTTPAdapter("local-chat", srv.URL, ShapeOpenAICompatLocal, "", 5, 0, 3, nil)
	_, err := a.Invoke(context.Background(), Request{Prompt: "hi", Model: "m"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}
