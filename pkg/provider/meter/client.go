// Package meter is a client for the smart-meter readings API. It implements
// backfill.SampleSource.
package meter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/core/store/historical"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/apex/log"
	"golang.org/x/time/rate"
)

// queryTimeLayout is the provider's from/to format, always UTC.
const queryTimeLayout = "2006-01-02T15:04:05"

// bucket is the width of the finest reading the provider stores.
const bucket = 30 * time.Minute

// tokenRenewMargin renews the session token shortly before it expires.
const tokenRenewMargin = time.Minute

type Client struct {
	baseURL       string
	username      string
	password      string
	applicationID string
	http          *http.Client
	limiter       *rate.Limiter
	logger        *log.Entry

	mu       sync.Mutex
	token    string
	tokenExp time.Time
}

func NewClient(cfg config.MeterConfig) *Client {
	return &Client{
		baseURL:       cfg.BaseURL,
		username:      cfg.Username,
		password:      cfg.Password,
		applicationID: cfg.ApplicationID,
		http:          &http.Client{Timeout: cfg.Timeout},
		limiter:       provider.NewLimiter(cfg.RequestsPerSecond, 1),
		logger:        log.WithField("module", "meter-client"),
	}
}

type authRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	ApplicationID string `json:"applicationId"`
}

type authResponse struct {
	Valid bool   `json:"valid"`
	Token string `json:"token"`
	Exp   int64  `json:"exp"`
}

type firstTimeResponse struct {
	Data struct {
		FirstTs int64 `json:"firstTs"`
	} `json:"data"`
}

type lastTimeResponse struct {
	Data struct {
		LastTs int64 `json:"lastTs"`
	} `json:"data"`
}

type readingsResponse struct {
	Data [][2]float64 `json:"data"`
}

// Bounds returns the resource's data range. The provider reports the start
// of its last bucket; LastAvailable is the end of that bucket so that a
// half-open fetch window includes it.
func (c *Client) Bounds(ctx context.Context, resourceID string) (provider.Bounds, error) {
	var first firstTimeResponse
	if err := c.get(ctx, "first-time", c.resourcePath(resourceID, "first-time"), nil, &first); err != nil {
		return provider.Bounds{}, err
	}
	var last lastTimeResponse
	if err := c.get(ctx, "last-time", c.resourcePath(resourceID, "last-time"), nil, &last); err != nil {
		return provider.Bounds{}, err
	}
	return provider.Bounds{
		FirstAvailable: time.Unix(first.Data.FirstTs, 0).UTC(),
		LastAvailable:  time.Unix(last.Data.LastTs, 0).UTC().Add(bucket),
	}, nil
}

// Samples returns the readings with start <= time < end.
func (c *Client) Samples(ctx context.Context, resourceID string, start, end time.Time, granularity provider.Granularity, reduction provider.Reduction) ([]historical.Sample, error) {
	if !granularity.Valid() {
		return nil, fmt.Errorf("unknown granularity %q", granularity)
	}
	if span := end.Sub(start); span > granularity.MaxSpan() {
		return nil, fmt.Errorf("window %s exceeds %s limit of %s", span, granularity, granularity.MaxSpan())
	}

	q := url.Values{}
	q.Set("from", start.UTC().Format(queryTimeLayout))
	// to is inclusive on the provider side
	q.Set("to", end.Add(-time.Second).UTC().Format(queryTimeLayout))
	q.Set("period", string(granularity))
	q.Set("offset", "0")
	q.Set("function", string(reduction))

	var resp readingsResponse
	if err := c.get(ctx, "readings", c.resourcePath(resourceID, "readings"), q, &resp); err != nil {
		return nil, err
	}

	samples := make([]historical.Sample, 0, len(resp.Data))
	for _, r := range resp.Data {
		t := time.Unix(int64(r[0]), 0).UTC()
		if t.Before(start) || !t.Before(end) {
			continue
		}
		samples = append(samples, historical.Sample{Time: t, Value: r[1]})
	}
	c.logger.WithField("resource", resourceID).Debugf("%d readings %s..%s", len(samples), start.Format(time.RFC3339), end.Format(time.RFC3339))
	return samples, nil
}

func (c *Client) resourcePath(resourceID, suffix string) string {
	return fmt.Sprintf("%s/resource/%s/%s", c.baseURL, url.PathEscape(resourceID), suffix)
}

func (c *Client) get(ctx context.Context, op, endpoint string, q url.Values, out interface{}) error {
	token, err := c.session(ctx)
	if err != nil {
		return err
	}

	if len(q) > 0 {
		endpoint = endpoint + "?" + q.Encode()
	}
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("applicationId", c.applicationID)
	req.Header.Set("token", token)

	err = provider.DoJSON(ctx, c.http, c.limiter, op, req, out)
	if provider.IsAuthentication(err) {
		c.dropSession()
	}
	return err
}

// session returns a valid token, logging in when there is none or it is
// about to expire.
func (c *Client) session(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && time.Now().Add(tokenRenewMargin).Before(c.tokenExp) {
		token := c.token
		c.mu.Unlock()
		return token, nil
	}
	c.mu.Unlock()

	body, err := json.Marshal(authRequest{
		Username:      c.username,
		Password:      c.password,
		ApplicationID: c.applicationID,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/auth", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("applicationId", c.applicationID)

	var resp authResponse
	if err := provider.DoJSON(ctx, c.http, c.limiter, "auth", req, &resp); err != nil {
		return "", err
	}
	if !resp.Valid || resp.Token == "" {
		return "", &provider.AuthenticationError{Op: "auth", Err: errors.New("credentials rejected")}
	}

	exp := time.Unix(resp.Exp, 0)
	c.mu.Lock()
	c.token = resp.Token
	c.tokenExp = exp
	c.mu.Unlock()
	c.logger.Debugf("session valid until %s", exp.Format(time.RFC3339))
	return resp.Token, nil
}

func (c *Client) dropSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
}
