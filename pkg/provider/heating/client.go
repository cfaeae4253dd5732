// Package heating is a client for the heating provider's features API.
package heating

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"com.qubular.energy-bridge/pkg/config"
	"com.qubular.energy-bridge/pkg/features"
	"com.qubular.energy-bridge/pkg/provider"
	"github.com/apex/log"
	"golang.org/x/time/rate"
)

// DeviceRef addresses one device behind a gateway of an installation.
type DeviceRef struct {
	InstallationID string
	GatewaySerial  string
	DeviceID       string
}

// Key identifies the device for caching and logging.
func (d DeviceRef) Key() string {
	return d.InstallationID + "/" + d.GatewaySerial + "/" + d.DeviceID
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	limiter *rate.Limiter
	logger  *log.Entry
}

func NewClient(cfg config.HeatingConfig) *Client {
	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.AccessToken,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: provider.NewLimiter(cfg.RequestsPerSecond, 1),
		logger:  log.WithField("module", "heating-client"),
	}
}

// Features fetches and decodes every enabled feature of a device.
func (c *Client) Features(ctx context.Context, ref DeviceRef) ([]features.Feature, error) {
	endpoint := fmt.Sprintf("%s/features/installations/%s/gateways/%s/devices/%s/features",
		c.baseURL,
		url.PathEscape(ref.InstallationID),
		url.PathEscape(ref.GatewaySerial),
		url.PathEscape(ref.DeviceID))
	req, err := http.NewRequest(http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	var body rawBody
	if err := provider.DoJSON(ctx, c.http, c.limiter, "features", req, &body); err != nil {
		return nil, err
	}
	fs, err := features.Decode(body)
	if err != nil {
		return nil, &provider.CommunicationError{Op: "features", Err: err}
	}
	c.logger.WithField("device", ref.Key()).Debugf("%d features", len(fs))
	return fs, nil
}

// rawBody keeps the response bytes for features.Decode.
type rawBody []byte

func (b *rawBody) UnmarshalJSON(data []byte) error {
	*b = append((*b)[:0], data...)
	return nil
}
