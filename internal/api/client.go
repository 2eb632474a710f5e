// Package api implements the HTTP layer of the VideoPlanet client: a thin
// wrapper issuing authenticated JSON REST calls against the remote backend
// and normalizing failures into a classified error envelope.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	headerAuthorization  = "Authorization"
	headerContentType    = "Content-Type"
	headerIdempotencyKey = "X-Idempotency-Key"
	contentTypeJSON      = "application/json"
)

var (
	errMissingBaseURL = errors.New("api: base URL required")
)

// TokenSource supplies the bearer token attached to authenticated requests.
// An empty token with a nil error means the request goes out unauthenticated.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ClientConfig describes the dependencies of the API client.
type ClientConfig struct {
	BaseURL    string
	Tokens     TokenSource
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client issues JSON requests against the VideoPlanet backend.
type Client struct {
	baseURL    string
	tokens     TokenSource
	timeout    time.Duration
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient constructs an API client from the provided configuration.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errMissingBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		tokens:     cfg.Tokens,
		timeout:    cfg.Timeout,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// Request describes a single backend call.
type Request struct {
	Method         string
	Path           string
	Body           any
	IdempotencyKey string
	// Unauthenticated skips bearer injection (login, refresh).
	Unauthenticated bool
}

// Get issues an authenticated GET and decodes the response into out.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.Do(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

// Post issues an authenticated POST with a JSON body and decodes the response into out.
func (c *Client) Post(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPost, Path: path, Body: body}, out)
}

// Put issues an authenticated PUT with a JSON body and decodes the response into out.
func (c *Client) Put(ctx context.Context, path string, body any, out any) error {
	return c.Do(ctx, Request{Method: http.MethodPut, Path: path, Body: body}, out)
}

// Delete issues an authenticated DELETE.
func (c *Client) Delete(ctx context.Context, path string) error {
	return c.Do(ctx, Request{Method: http.MethodDelete, Path: path}, nil)
}

// Do executes the request and decodes a successful JSON response into out
// (ignored when nil). Failures are returned as *Error classified per the
// client taxonomy.
func (c *Client) Do(ctx context.Context, request Request, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var bodyReader io.Reader
	if request.Body != nil {
		encoded, err := json.Marshal(request.Body)
		if err != nil {
			return fmt.Errorf("api: encode request body: %w", err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	url := c.baseURL + "/" + strings.TrimLeft(request.Path, "/")
	httpRequest, err := http.NewRequestWithContext(ctx, request.Method, url, bodyReader)
	if err != nil {
		return fmt.Errorf("api: build request: %w", err)
	}
	if request.Body != nil {
		httpRequest.Header.Set(headerContentType, contentTypeJSON)
	}
	if request.IdempotencyKey != "" {
		httpRequest.Header.Set(headerIdempotencyKey, request.IdempotencyKey)
	}
	if !request.Unauthenticated && c.tokens != nil {
		token, err := c.tokens.AccessToken(ctx)
		if err != nil {
			return fmt.Errorf("api: resolve access token: %w", err)
		}
		if token != "" {
			httpRequest.Header.Set(headerAuthorization, "Bearer "+token)
		}
	}

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		c.logger.Warn("request transport failure",
			zap.String("method", request.Method),
			zap.String("path", request.Path),
			zap.Error(err))
		return newTransportError(err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return c.decodeError(response)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("api: decode response: %w", err)
	}
	return nil
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
	Error   string `json:"error"`
	Detail  string `json:"detail"`
}

// decodeError normalizes the backend's error body shapes into *Error.
func (c *Client) decodeError(response *http.Response) error {
	apiError := &Error{Status: response.StatusCode, Message: http.StatusText(response.StatusCode)}

	raw, err := io.ReadAll(io.LimitReader(response.Body, 1<<16))
	if err == nil && len(raw) > 0 {
		var payload errorPayload
		if json.Unmarshal(raw, &payload) == nil {
			switch {
			case payload.Message != "":
				apiError.Message = payload.Message
			case payload.Error != "":
				apiError.Message = payload.Error
			case payload.Detail != "":
				apiError.Message = payload.Detail
			}
			apiError.Code = payload.Code
		}
	}
	return apiError
}
