package adapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/sirupsen/logrus"

	"dev.aicounsel.server/internal/aierrors"
)

// Shape selects the request/response wire format an HTTPAdapter speaks.
type Shape int

const (
	// ShapeGenerate is the Ollama-style /api/generate shape: a single
	// {model, prompt} request body, a single {response} field reply.
	ShapeGenerate Shape = iota
	// ShapeOpenAICompatLocal is the OpenAI chat-completions shape
	// spoken by local inference servers (no bearer token required).
	ShapeOpenAICompatLocal
	// ShapeOpenAICompatHosted is the same chat-completions shape, plus
	// an Authorization: Bearer header carrying a resolved API key.
	ShapeOpenAICompatHosted
)

// HTTPAdapter invokes a backend over HTTP, sharing one retry policy
// across all three wire shapes: exponential backoff, retrying only on
// network failures, 5xx, and 429 — never on other 4xx.
type HTTPAdapter struct {
	Base
	URL        string
	Shape      Shape
	APIKey     string // resolved bearer token, sent only for ShapeOpenAICompatHosted (may be empty)
	Client     *http.Client
	MaxRetries int
	Logger     *logrus.Logger
}

// NewHTTPAdapter builds an HTTP-backed adapter instance.
func NewHTTPAdapter(name, url string, shape Shape, apiKey string, timeoutSeconds, maxPromptLen, maxRetries int, logger *logrus.Logger) *HTTPAdapter {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := time.Duration(timeoutSeconds) * time.Second
	return &HTTPAdapter{
		Base: Base{
			AdapterName:     name,
			Timeout:         timeout,
			MaxPromptLength: maxPromptLen,
		},
		URL:        url,
		Shape:      shape,
		APIKey:     apiKey,
		Client:     &http.Client{Timeout: timeout},
		MaxRetries: maxRetries,
		Logger:     logger,
	}
}

func (a *HTTPAdapter) Name() string { return a.AdapterName }

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (a *HTTPAdapter) buildRequestBody(model, prompt string) ([]byte, error) {
	switch a.Shape {
	case ShapeGenerate:
		return json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	case ShapeOpenAICompatLocal, ShapeOpenAICompatHosted:
		return json.Marshal(chatRequest{Model: model, Messages: []chatMessage{{Role: "user", Content: prompt}}})
	default:
		return nil, fmt.Errorf("unknown adapter shape %d", a.Shape)
	}
}

func (a *HTTPAdapter) parseResponseBody(body []byte) (string, error) {
	switch a.Shape {
	case ShapeGenerate:
		var r generateResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", err
		}
		return r.Response, nil
	case ShapeOpenAICompatLocal, ShapeOpenAICompatHosted:
		var r chatResponse
		if err := json.Unmarshal(body, &r); err != nil {
			return "", err
		}
		if len(r.Choices) == 0 {
			return "", fmt.Errorf("response contained no choices")
		}
		return r.Choices[0].Message.Content, nil
	default:
		return "", fmt.Errorf("unknown adapter shape %d", a.Shape)
	}
}

// Invoke sends one request, retrying per the shared policy until
// MaxRetries is exhausted or a non-retryable classification is hit.
func (a *HTTPAdapter) Invoke(ctx context.Context, req Request) (string, error) {
	prompt, err := a.PrepareInput(req)
	if err != nil {
		return "", err
	}

	timeoutCtx, cancel := a.TimeoutContext(ctx)
	defer cancel()

	op := func() (string, error) {
		return a.doRequest(timeoutCtx, req.Model, prompt)
	}

	result, err := backoff.Retry(timeoutCtx, op,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(uint(a.retries())),
	)
	if err != nil {
		if timeoutCtx.Err() == context.DeadlineExceeded {
			return "", a.AsTimeout("http request exceeded timeout")
		}
		return "", err
	}
	return result, nil
}

func (a *HTTPAdapter) retries() int {
	if a.MaxRetries <= 0 {
		return 1
	}
	return a.MaxRetries
}

// doRequest performs one HTTP round trip and classifies the outcome.
// Returning a *backoff.PermanentError short-circuits retry for
// non-retryable failures (validation, non-retryable 4xx).
func (a *HTTPAdapter) doRequest(ctx context.Context, model, prompt string) (string, error) {
	body, err := a.buildRequestBody(model, prompt)
	if err != nil {
		return "", backoff.Permanent(aierrors.NewFatalAdapterError(a.AdapterName, "failed to encode request", 0, err))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.URL, bytes.NewReader(body))
	if err != nil {
		return "", backoff.Permanent(aierrors.NewFatalAdapterError(a.AdapterName, "failed to build request", 0, err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if a.Shape == ShapeOpenAICompatHosted {
		// api_key is an optional field: an empty key degrades to "no
		// auth" and the request is sent unconditionally, letting the
		// server reject it observably rather than failing locally.
		httpReq.Header.Set("Authorization", "Bearer "+a.APIKey)
	}

	resp, err := a.Client.Do(httpReq)
	if err != nil {
		// Network-layer failure: always retryable.
		return "", aierrors.NewTransientError(a.AdapterName, err.Error(), 0, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", aierrors.NewTransientError(a.AdapterName, "failed to read response body", 0, err)
	}

	if resp.StatusCode >= 500 || resp.StatusCode == 429 {
		return "", aierrors.NewTransientError(a.AdapterName, string(respBody), resp.StatusCode, nil)
	}
	if resp.StatusCode >= 400 {
		return "", backoff.Permanent(aierrors.NewFatalAdapterError(a.AdapterName, string(respBody), resp.StatusCode, nil))
	}

	text, err := a.parseResponseBody(respBody)
	if err != nil {
		return "", backoff.Permanent(aierrors.NewFatalAdapterError(a.AdapterName, "malformed response body", resp.StatusCode, err))
	}
	return text, nil
}
