package overseerr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/mbrownnycnyc/signalerr/metrics"
)

// Client represents an Overseerr API client
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     zerolog.Logger
	metrics    *metrics.Metrics
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithMetrics records call latency on the given collectors
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates a new Overseerr client
func NewClient(baseURL, apiKey string, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("%w: URL is required", ErrInvalidConfig)
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: API key is required", ErrInvalidConfig)
	}

	client := &Client{
		baseURL: normalizeBaseURL(baseURL),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger: logger.With().Str("component", "overseerr").Logger(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// doRequest performs an HTTP request with authentication
func (c *Client) doRequest(ctx context.Context, method, endpoint string, params url.Values, payload any) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/api/v1%s", c.baseURL, endpoint)
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	var reqBody io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("X-Api-Key", c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.observe(method, endpoint, 0, start)
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.observe(method, endpoint, resp.StatusCode, start)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	c.observe(method, endpoint, resp.StatusCode, start)

	return body, c.classify(resp.StatusCode, body)
}

// classify maps non-success status codes onto the package error set.
func (c *Client) classify(status int, body []byte) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusConflict:
		return fmt.Errorf("%w: %s", ErrAlreadyRequested, apiMessage(body))
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiMessage(body))
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, apiMessage(body))
	case status >= 500:
		return fmt.Errorf("%w: status %d", ErrServiceUnavailable, status)
	default:
		return &APIError{StatusCode: status, Message: apiMessage(body), Body: string(body)}
	}
}

func (c *Client) observe(method, endpoint string, status int, start time.Time) {
	if c.metrics == nil {
		return
	}
	c.metrics.OverseerrLatency.
		WithLabelValues(method+" "+endpoint, strconv.Itoa(status)).
		Observe(time.Since(start).Seconds())
}

// apiMessage pulls the message field out of an Overseerr error body.
func apiMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return string(body)
}

// TestConnection verifies the Overseerr instance is reachable
func (c *Client) TestConnection(ctx context.Context) error {
	body, err := c.doRequest(ctx, http.MethodGet, "/status", nil, nil)
	if err != nil {
		return err
	}

	var info StatusInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return fmt.Errorf("failed to parse status response: %w", err)
	}

	c.logger.Debug().Str("version", info.Version).Msg("Connected to Overseerr")
	return nil
}

// Search queries Overseerr for titles matching the query. A nil error with an
// empty slice means Overseerr recognized nothing.
func (c *Client) Search(ctx context.Context, query string, mediaType MediaType) ([]SearchResult, error) {
	params := url.Values{}
	params.Set("query", query)
	if mediaType != "" {
		params.Set("type", string(mediaType))
	}

	body, err := c.doRequest(ctx, http.MethodGet, "/search", params, nil)
	if err != nil {
		return nil, fmt.Errorf("search failed: %w", err)
	}

	var response SearchResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse search response: %w", err)
	}

	// Search mixes movies, shows, and people. Drop anything without a usable type.
	results := make([]SearchResult, 0, len(response.Results))
	for _, r := range response.Results {
		if r.MediaType == MediaTypeMovie || r.MediaType == MediaTypeTV {
			results = append(results, r)
		}
	}

	c.logger.Debug().
		Str("query", query).
		Int("count", len(results)).
		Msg("Searched Overseerr")

	return results, nil
}

// MovieDetails retrieves the detail view of a movie, including its
// collection membership if any
func (c *Client) MovieDetails(ctx context.Context, tmdbID int) (*MovieDetails, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/movie/%d", tmdbID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get movie %d: %w", tmdbID, err)
	}

	var details MovieDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to parse movie details: %w", err)
	}

	return &details, nil
}

// TvDetails retrieves the detail view of a TV show
func (c *Client) TvDetails(ctx context.Context, tmdbID int) (*TvDetails, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/tv/%d", tmdbID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get tv %d: %w", tmdbID, err)
	}

	var details TvDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to parse tv details: %w", err)
	}

	return &details, nil
}

// Collection retrieves a movie collection and its member films
func (c *Client) Collection(ctx context.Context, id int) (*Collection, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/collection/%d", id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get collection %d: %w", id, err)
	}

	var collection Collection
	if err := json.Unmarshal(body, &collection); err != nil {
		return nil, fmt.Errorf("failed to parse collection: %w", err)
	}

	return &collection, nil
}

// SubmitRequest creates a media request in Overseerr and returns its ID
func (c *Client) SubmitRequest(ctx context.Context, opts SubmitOptions) (*SubmitResponse, error) {
	body, err := c.doRequest(ctx, http.MethodPost, "/request", nil, opts)
	if err != nil {
		return nil, err
	}

	var response SubmitResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse request response: %w", err)
	}

	c.logger.Info().
		Int64("request_id", response.ID).
		Str("media_type", string(opts.MediaType)).
		Int("media_id", opts.MediaID).
		Msg("Submitted request to Overseerr")

	return &response, nil
}

// RequestDetails retrieves the current state of a request
func (c *Client) RequestDetails(ctx context.Context, id int64) (*RequestDetails, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/request/%d", id), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get request %d: %w", id, err)
	}

	var details RequestDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("failed to parse request details: %w", err)
	}

	return &details, nil
}

// MediaStatus retrieves the availability status of a library item
func (c *Client) MediaStatus(ctx context.Context, mediaID int) (*MediaStatus, error) {
	body, err := c.doRequest(ctx, http.MethodGet, fmt.Sprintf("/media/%d/status", mediaID), nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get media status %d: %w", mediaID, err)
	}

	var status MediaStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("failed to parse media status: %w", err)
	}

	return &status, nil
}

// DeclineRequest declines a request inside Overseerr
func (c *Client) DeclineRequest(ctx context.Context, id int64, reason string) error {
	var payload any
	if reason != "" {
		payload = map[string]string{"reason": reason}
	}

	if _, err := c.doRequest(ctx, http.MethodPost, fmt.Sprintf("/request/%d/decline", id), nil, payload); err != nil {
		return fmt.Errorf("failed to decline request %d: %w", id, err)
	}

	c.logger.Info().Int64("request_id", id).Msg("Declined request in Overseerr")
	return nil
}
