// Package upstream talks to the image generation backend.
package upstream

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/sofatutor/imagegen-proxy/internal/catalog"
	"github.com/sofatutor/imagegen-proxy/internal/config"
	"github.com/sofatutor/imagegen-proxy/internal/logging"
	"go.uber.org/zap"
)

const (
	userAgent       = "imagegen-proxy/1.0"
	maxResponseSize = 10 * 1024 * 1024
	genericFailure  = "upstream generation failed"
)

// GenerationRequest is one text-to-image call. It lives for a single request.
type GenerationRequest struct {
	Prompt      string
	Model       string
	Style       string
	AspectRatio string
	Outputs     int
}

// Result is a successful generation.
type Result struct {
	URLs    []string
	Credits int
	Prompt  string // prompt as sent, style suffix included
}

// Generator is what the HTTP front end needs from the upstream.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest, trace *logging.RequestLog) (*Result, error)
}

// Client calls the upstream generate endpoint with the operator's credential.
type Client struct {
	baseURL      string
	apiKey       string
	generatePath string
	provider     string
	catalog      *catalog.Catalog
	httpClient   *http.Client
	logger       *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient builds a client for the configured backend.
func NewClient(cfg config.UpstreamConfig, cat *catalog.Catalog, timeout time.Duration, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:       cfg.APIKey,
		generatePath: cfg.GeneratePath,
		provider:     cfg.Provider,
		catalog:      cat,
		httpClient:   &http.Client{Timeout: timeout},
		logger:       logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// generateResponse is the upstream JSON envelope. A missing code counts as failure.
type generateResponse struct {
	Code    *int   `json:"code"`
	Message string `json:"message"`
	Data    []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// Generate runs one text-to-image generation and returns the image URLs in
// upstream order.
func (c *Client) Generate(ctx context.Context, req GenerationRequest, trace *logging.RequestLog) (*Result, error) {
	if req.Model == "" {
		req.Model = c.catalog.DefaultModel()
	}
	req.Outputs = catalog.ClampOutputs(req.Outputs)
	req.AspectRatio = catalog.NormalizeAspectRatio(req.AspectRatio)

	prompt := c.catalog.EnhancePrompt(req.Prompt, req.Style)
	credits := c.catalog.CreditCost(req.Model, req.Outputs)
	style := req.Style
	if style == "" {
		style = "auto"
	}

	trace.Add("Generation Request", map[string]any{
		"model":       req.Model,
		"prompt":      prompt,
		"style":       style,
		"aspectRatio": req.AspectRatio,
		"num_outputs": req.Outputs,
		"credits":     credits,
	})

	body, contentType, err := c.buildForm(prompt, style, req)
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + c.generatePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Accept-Encoding", "br, gzip")
	httpReq.Header.Set("User-Agent", userAgent)
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if id, ok := logging.GetRequestID(ctx); ok {
		httpReq.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		trace.Add("Upstream Transport Error", err.Error())
		return nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("Error closing upstream response body", zap.Error(cerr))
		}
	}()

	raw, err := readBody(resp)
	if err != nil {
		return nil, &Error{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read upstream response: %v", err)}
	}

	c.logger.Debug("Upstream generate call finished",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Int("credits", credits),
		zap.Duration("duration", time.Since(start)))

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		trace.Add("Upstream Parse Error", truncate(string(raw), 200))
		return nil, &Error{
			StatusCode: resp.StatusCode,
			Message:    "upstream returned non-JSON: " + truncate(string(raw), 100),
		}
	}
	trace.Add("Upstream Response", json.RawMessage(raw))

	if resp.StatusCode < 200 || resp.StatusCode > 299 || parsed.Code == nil || *parsed.Code != 0 {
		e := &Error{StatusCode: resp.StatusCode, Message: parsed.Message}
		if parsed.Code != nil {
			e.Code = *parsed.Code
		}
		if e.Message == "" {
			e.Message = genericFailure
		}
		return nil, e
	}

	urls := make([]string, 0, len(parsed.Data))
	for _, d := range parsed.Data {
		urls = append(urls, d.URL)
	}
	if len(urls) == 0 {
		return nil, &Error{StatusCode: resp.StatusCode, Message: "upstream returned no images"}
	}

	return &Result{URLs: urls, Credits: credits, Prompt: prompt}, nil
}

func (c *Client) buildForm(prompt, style string, req GenerationRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ key, value string }{
		{"prompt", prompt},
		{"model", req.Model},
		{"num_outputs", strconv.Itoa(req.Outputs)},
		{"inputMode", "text"},
		{"style", style},
		{"aspectRatio", req.AspectRatio},
		{"provider", c.provider},
	}
	for _, f := range fields {
		if err := w.WriteField(f.key, f.value); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f.key, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// readBody reads the response, undoing brotli or gzip content encoding.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxResponseSize))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
