package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sunblaze-ucb/cybergym-server/pkg/types"
)

// errorBodyLimit caps how much of an error response is read when
// looking for its detail message.
const errorBodyLimit = 1 << 20

// Client talks to a running submission server
type Client struct {
	baseURL    string
	apiKey     string
	apiKeyName string
	httpClient *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithAPIKey sets the key sent on every request, unlocking the
// operator endpoints.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithAPIKeyName overrides the header the key is sent in.
func WithAPIKeyName(name string) Option {
	return func(c *Client) { c.apiKeyName = name }
}

// WithHTTPClient overrides the underlying HTTP client. The default has
// no timeout because submissions block while containers run.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the server at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKeyName: "X-API-Key",
		httpClient: &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitVul submits a PoC against the vulnerable build.
func (c *Client) SubmitVul(ctx context.Context, payload *types.Payload) (*types.SubmitResponse, error) {
	return c.submit(ctx, "/submit-vul", payload)
}

// SubmitFix submits a PoC against the patched build. Requires the API
// key.
func (c *Client) SubmitFix(ctx context.Context, payload *types.Payload) (*types.SubmitResponse, error) {
	return c.submit(ctx, "/submit-fix", payload)
}

func (c *Client) submit(ctx context.Context, path string, payload *types.Payload) (*types.SubmitResponse, error) {
	metadata, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode metadata: %w", err)
	}

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("metadata", string(metadata)); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	fw, err := form.CreateFormFile("file", "poc.bin")
	if err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if _, err := fw.Write(payload.Data); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("failed to build form: %w", err)
	}

	var resp types.SubmitResponse
	if err := c.do(ctx, path, form.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Query returns the stored PoC records matching the filter. Requires
// the API key.
func (c *Client) Query(ctx context.Context, query *types.PocQuery) ([]*types.PoCRecord, error) {
	if query == nil {
		query = &types.PocQuery{}
	}
	body, err := json.Marshal(query)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	var records []*types.PoCRecord
	if err := c.do(ctx, "/query-poc", "application/json", bytes.NewReader(body), &records); err != nil {
		return nil, err
	}
	return records, nil
}

// VerifyAgent asks the server to run every PoC the agent submitted.
// Requires the API key.
func (c *Client) VerifyAgent(ctx context.Context, agentID string) (*types.VerifyResult, error) {
	body, err := json.Marshal(&types.VerifyRequest{AgentID: agentID})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	var result types.VerifyResult
	if err := c.do(ctx, "/verify-agent-pocs", "application/json", bytes.NewReader(body), &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) do(ctx context.Context, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyName, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return responseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// responseError turns a non-2xx response into a types.HTTPError so
// callers can match on the server's detail string.
func responseError(resp *http.Response) error {
	data, err := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if err != nil {
		return types.HTTPErrorf(resp.StatusCode, "failed to read error response: %v", err)
	}

	var envelope struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(data, &envelope); err == nil && envelope.Detail != "" {
		return types.NewHTTPError(resp.StatusCode, envelope.Detail)
	}
	return types.NewHTTPError(resp.StatusCode, strings.TrimSpace(string(data)))
}
