package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"golang.org/x/time/rate"
)

// maxErrorBody bounds how much of an error response ends up in an error.
const maxErrorBody = 512

// DoJSON waits for the limiter, sends req and decodes a 2xx JSON body into
// out. Failures are returned as AuthenticationError or CommunicationError.
func DoJSON(ctx context.Context, client *http.Client, limiter *rate.Limiter, op string, req *http.Request, out interface{}) error {
	if limiter != nil {
		if err := limiter.Wait(ctx); err != nil {
			return &CommunicationError{Op: op, Err: err}
		}
	}

	req.Header.Set("Accept", "application/json")
	resp, err := client.Do(req.WithContext(ctx))
	if err != nil {
		return &CommunicationError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &CommunicationError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	msg := strings.TrimSpace(string(body))
	if len(msg) > maxErrorBody {
		msg = msg[:maxErrorBody]
	}
	if err := Classify(op, resp.StatusCode, msg); err != nil {
		return err
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &CommunicationError{Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode body: %w", err)}
	}
	return nil
}

// NewLimiter returns a limiter for rps requests per second, or nil for no
// limit.
func NewLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}
