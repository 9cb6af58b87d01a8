// Package api is the HTTP client for the to-do REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/Joseda-hg/lazytodo/internal/metrics"
)

const maxErrorBody = 64 << 10

// CredentialSource is read on every protected call. tokenstore.Store
// satisfies it.
type CredentialSource interface {
	Get(ctx context.Context) (*oauth2.Token, bool, error)
}

// Navigator moves the user to the sign-in entry point.
type Navigator interface {
	SignIn()
}

type NavigatorFunc func()

func (f NavigatorFunc) SignIn() { f() }

type Client struct {
	baseURL     string
	httpClient  *http.Client
	credentials CredentialSource
	navigator   Navigator
	logger      *log.Logger
	limiter     *rate.Limiter
	metrics     metrics.Recorder
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithNavigator(navigator Navigator) Option {
	return func(c *Client) { c.navigator = navigator }
}

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(c *Client) { c.metrics = recorder }
}

// WithRateLimit caps outgoing requests per second. Zero disables it.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

func New(baseURL string, credentials CredentialSource, opts ...Option) *Client {
	c := &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: 15 * time.Second},
		credentials: credentials,
		navigator:   NavigatorFunc(func() {}),
		logger:      log.New(io.Discard),
		metrics:     metrics.Nop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
	token  *oauth2.Token
}

// doProtected attaches the stored credential. A missing credential fails
// before the request is built; a 401 triggers sign-in navigation before any
// other status mapping.
func (c *Client) doProtected(ctx context.Context, req request, out any) error {
	token, ok, err := c.credentials.Get(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return ErrUnauthenticated
	}
	req.token = token

	resp, err := c.send(ctx, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Warn("credential rejected", "op", req.op)
		c.navigator.SignIn()
		return ErrAuthRequired
	}
	if err := statusError(resp); err != nil {
		c.logger.Error("api error", "op", req.op, "status", resp.StatusCode)
		return err
	}
	return decodeBody(resp, out)
}

func (c *Client) send(ctx context.Context, req request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("%s: %w", req.op, err)
		}
	}

	endpoint := c.baseURL + req.path
	if len(req.query) > 0 {
		endpoint += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		payload, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode %s request: %w", req.op, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build %s request: %w", req.op, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	httpReq.Header.Set("X-Request-ID", requestID)
	if req.token != nil {
		req.token.SetAuthHeader(httpReq)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	elapsed := time.Since(start)
	if err != nil {
		c.metrics.RecordTransportError(req.op)
		c.logger.Error("api request failed", "op", req.op, "request_id", requestID, "err", err)
		return nil, fmt.Errorf("%s: %w", req.op, err)
	}
	c.metrics.RecordRequest(req.op, resp.StatusCode, elapsed)
	c.logger.Debug("api request",
		"op", req.op,
		"method", req.method,
		"path", req.path,
		"status", resp.StatusCode,
		"request_id", requestID,
		"duration", elapsed,
	)
	return resp, nil
}

type errorBody struct {
	Message string `json:"message"`
	Detail  any    `json:"detail"`
}

// serverMessage reads {message} or a string {detail} from an error body.
func serverMessage(resp *http.Response) string {
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(data) == 0 {
		return ""
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		return ""
	}
	if body.Message != "" {
		return body.Message
	}
	if detail, ok := body.Detail.(string); ok {
		return detail
	}
	return ""
}

func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &StatusError{
		StatusCode: resp.StatusCode,
		StatusText: statusText(resp),
		Message:    serverMessage(resp),
	}
}

// statusText prefers the reason phrase the server actually sent.
func statusText(resp *http.Response) string {
	prefix := fmt.Sprintf("%d ", resp.StatusCode)
	if text := strings.TrimPrefix(resp.Status, prefix); text != resp.Status && text != "" {
		return text
	}
	return http.StatusText(resp.StatusCode)
}

func decodeBody(resp *http.Response, out any) error {
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return ErrInvalidResponse
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
