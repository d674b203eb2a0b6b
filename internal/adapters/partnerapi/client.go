// Package partnerapi implements the live prospect source against the partner
// HTTP API, including error classification, a bounded retry, and rate limiting.
package partnerapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"
	"golang.org/x/time/rate"

	"github.com/dealerlink/prospect-ingest/config"
	apperrors "github.com/dealerlink/prospect-ingest/internal/errors"
	"github.com/dealerlink/prospect-ingest/internal/domain/model"
)

const dateFormat = "2006-01-02"

// maxResponseBytes bounds how much of a partner response we are willing to
// read. Anything larger is treated as malformed.
const maxResponseBytes = 32 << 20

// Client fetches raw prospects from the partner API. Transport failures are
// retried exactly once after a backoff; auth and parse failures are returned
// immediately for the orchestrator to handle.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	limiter      *rate.Limiter
	recordsPath  string
	retryBackoff time.Duration
	logger       *slog.Logger
}

// ClientOptions contains the dependencies for creating a Client.
type ClientOptions struct {
	Config     config.FetchConfig
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// NewClient creates a partner API client from fetch configuration. The
// records path expression is compiled once up front so a bad expression
// surfaces at startup rather than mid-run.
func NewClient(opts ClientOptions) (*Client, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if _, err := jmespath.Compile(opts.Config.RecordsPath); err != nil {
		return nil, fmt.Errorf("compile records path %q: %w", opts.Config.RecordsPath, err)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: opts.Config.Timeout}
	}

	var limiter *rate.Limiter
	if opts.Config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.Config.RequestsPerSecond), 1)
	}

	return &Client{
		baseURL:      opts.Config.BaseURL,
		httpClient:   httpClient,
		limiter:      limiter,
		recordsPath:  opts.Config.RecordsPath,
		retryBackoff: opts.Config.RetryBackoff,
		logger:       opts.Logger.With("component", "partnerapi"),
	}, nil
}

// Fetch retrieves raw prospects for a dealer over a date range. A transport
// failure gets one retry after the configured backoff; any other failure is
// final.
func (c *Client) Fetch(ctx context.Context, cred *model.DealerCredential, rng model.DateRange) ([]model.RawProspect, error) {
	if cred == nil {
		return nil, apperrors.Configuration("credential is required")
	}
	if err := rng.Validate(); err != nil {
		return nil, apperrors.Validation(err.Error())
	}

	records, err := c.fetchOnce(ctx, cred, rng)
	if err == nil {
		return records, nil
	}
	if !apperrors.IsRetryable(err) {
		return nil, err
	}

	c.logger.Warn("transport failure, retrying once",
		"dealer_id", cred.DealerID,
		"backoff", c.retryBackoff,
		"error", err)

	select {
	case <-ctx.Done():
		return nil, apperrors.Wrap(ctx.Err(), apperrors.ErrCodeTransport, "canceled during retry backoff")
	case <-time.After(c.retryBackoff):
	}

	records, retryErr := c.fetchOnce(ctx, cred, rng)
	if retryErr != nil {
		return nil, retryErr
	}
	return records, nil
}

func (c *Client) fetchOnce(ctx context.Context, cred *model.DealerCredential, rng model.DateRange) ([]model.RawProspect, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "rate limiter wait")
		}
	}

	req, err := c.buildRequest(ctx, cred, rng)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "partner request failed")
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, apperrors.Auth(fmt.Sprintf("partner rejected credentials (status %d)", resp.StatusCode))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, apperrors.Transport(fmt.Sprintf("partner returned status %d", resp.StatusCode))
	default:
		return nil, apperrors.Malformed(fmt.Sprintf("partner rejected request (status %d)", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeTransport, "read partner response")
	}

	return c.extractRecords(body)
}

func (c *Client) buildRequest(ctx context.Context, cred *model.DealerCredential, rng model.DateRange) (*http.Request, error) {
	endpoint, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeConfiguration, "invalid partner base url")
	}
	endpoint = endpoint.JoinPath("v1", "dealers", cred.DealerID, "prospects")

	q := endpoint.Query()
	q.Set("start_date", rng.Start.Format(dateFormat))
	q.Set("end_date", rng.End.Format(dateFormat))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "build partner request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Api-Key", cred.APIKey)
	req.Header.Set("X-Api-Token", cred.APIToken)
	return req, nil
}

// extractRecords locates the prospect array in the response. The configured
// JMESPath handles enveloped responses; a bare top-level array is also
// accepted since some partners skip the envelope.
func (c *Client) extractRecords(body []byte) ([]model.RawProspect, error) {
	var envelope any
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMalformed, "partner response is not valid json")
	}

	payload := envelope
	if _, isArray := envelope.([]any); !isArray {
		located, err := jmespath.Search(c.recordsPath, envelope)
		if err != nil {
			return nil, apperrors.Wrap(err, apperrors.ErrCodeMalformed, "locate records in partner response")
		}
		if located == nil {
			return nil, apperrors.Malformed("partner response has no record array")
		}
		payload = located
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMalformed, "re-encode partner records")
	}

	var records []model.RawProspect
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeMalformed, "decode partner records")
	}
	return records, nil
}
