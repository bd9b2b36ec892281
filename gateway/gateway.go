package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/revisely/go-study-client/internal/metrics"
)

// TokenSource provides access credentials to the gateway. AccessToken must
// never trigger a refresh on its own; RefreshAccessToken is expected to be
// single-flight and to talk to the backend directly, bypassing the gateway,
// so a refresh can never recurse into the retry protocol.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
	RefreshAccessToken(ctx context.Context) (string, error)
}

// Client issues authenticated calls against the backend. On an
// authorization failure it refreshes the access credential through the
// TokenSource and reissues the identical request exactly once; credential
// mutation itself never happens here.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	log     zerolog.Logger
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.http = httpClient
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

func New(baseURL string, tokens TokenSource, options ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("[gateway.New] baseURL is required")
	}
	if tokens == nil {
		return nil, errors.New("[gateway.New] token source is required")
	}

	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 30 * time.Second},
		tokens:  tokens,
		log:     zerolog.Nop(),
	}
	for _, opt := range options {
		opt(c)
	}
	return c, nil
}

// Request describes one backend call. Body, when non-nil, is marshaled as
// JSON once and reused verbatim if the request is retried after a refresh.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
}

// Call issues req and decodes a success body into T. Failures are either a
// *RequestError (backend replied non-2xx), an ErrUnauthorized-wrapped error
// (terminal authorization failure), or a transport error.
func Call[T any](ctx context.Context, c *Client, req Request) (T, error) {
	var out T
	body, err := c.Do(ctx, req)
	if err != nil {
		return out, err
	}
	if len(body) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, errors.Wrap(err, "[gateway.Call] decode response")
	}
	return out, nil
}

// Do issues req with the current access credential attached and returns the
// raw success body, applying the refresh-and-retry-once protocol on a 401.
func (c *Client) Do(ctx context.Context, req Request) ([]byte, error) {
	var payload []byte
	if req.Body != nil {
		data, err := json.Marshal(req.Body)
		if err != nil {
			return nil, errors.Wrap(err, "[Client.Do] marshal request body")
		}
		payload = data
	}

	token, err := c.tokens.AccessToken(ctx)
	if err != nil {
		// An unreadable credential store is equivalent to having no token;
		// the request proceeds unauthenticated and the 401 path takes over.
		c.log.Debug().Err(err).Msg("could not read access token")
		token = ""
	}

	requestID := uuid.New().String()

	status, body, err := c.issue(ctx, req, payload, token, requestID)
	if err != nil {
		metrics.RequestsTotal.WithLabelValues(req.Method, "transport").Inc()
		return nil, err
	}

	if status == http.StatusUnauthorized {
		token, err = c.tokens.RefreshAccessToken(ctx)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues(req.Method, "unauthorized").Inc()
			return nil, errors.Wrap(ErrUnauthorized, "[Client.Do] token refresh failed")
		}

		metrics.RetriesTotal.Inc()
		c.log.Debug().Str("path", req.Path).Msg("retrying request after token refresh")

		status, body, err = c.issue(ctx, req, payload, token, requestID)
		if err != nil {
			metrics.RequestsTotal.WithLabelValues(req.Method, "transport").Inc()
			return nil, err
		}
		if status == http.StatusUnauthorized {
			metrics.RequestsTotal.WithLabelValues(req.Method, "unauthorized").Inc()
			return nil, errors.Wrap(ErrUnauthorized, "[Client.Do] request unauthorized after refresh")
		}
	}

	if status < 200 || status > 299 {
		metrics.RequestsTotal.WithLabelValues(req.Method, "error").Inc()
		return nil, &RequestError{
			Status:  status,
			Payload: ParseErrorPayload(body),
			Body:    body,
		}
	}

	metrics.RequestsTotal.WithLabelValues(req.Method, "success").Inc()
	return body, nil
}

func (c *Client) issue(ctx context.Context, req Request, payload []byte, token, requestID string) (int, []byte, error) {
	target := c.baseURL + req.Path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.issue] build request")
	}

	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, nil, errors.Wrapf(err, "[Client.issue] %s %s", req.Method, req.Path)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, errors.Wrap(err, "[Client.issue] read response body")
	}
	return resp.StatusCode, body, nil
}
