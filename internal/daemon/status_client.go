package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// ErrAPIUnavailable reports that no status listener is configured.
var ErrAPIUnavailable = errors.New("status API unavailable")

// StatusClient queries a running daemon's /api/status endpoint.
type StatusClient struct {
	http *resty.Client
}

// NewStatusClient returns nil when bind is empty.
func NewStatusClient(bind, token string) (*StatusClient, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, nil
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	client := resty.New().
		SetBaseURL(base.String()).
		SetTimeout(5*time.Second).
		SetHeader("Accept", "application/json")
	if token = strings.TrimSpace(token); token != "" {
		client.SetAuthToken(token)
	}
	return &StatusClient{http: client}, nil
}

// Fetch returns the daemon's current status.
func (c *StatusClient) Fetch(ctx context.Context) (Status, error) {
	if c == nil {
		return Status{}, ErrAPIUnavailable
	}
	var payload Status
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&payload).
		Get("/api/status")
	if err != nil {
		return Status{}, err
	}
	if resp.IsError() {
		return Status{}, fmt.Errorf("api status returned status %d", resp.StatusCode())
	}
	return payload, nil
}

// IsAPIUnavailable reports whether err means no daemon is listening.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}
