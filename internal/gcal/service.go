package gcal

import (
	"context"
	"fmt"
	"net/http"

	"golang.org/x/oauth2"
	calendar "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

// clientOptions carries the transport overrides shared by the syncer and the
// importer. Tests point endpoint at an httptest server.
type clientOptions struct {
	endpoint   string
	httpClient *http.Client
}

// Option configures the calendar transport.
type Option func(*clientOptions)

// WithEndpoint overrides the Google Calendar API base URL.
func WithEndpoint(url string) Option {
	return func(o *clientOptions) { o.endpoint = url }
}

// WithHTTPClient supplies a pre-authenticated HTTP client, bypassing the
// token source transport. Used in tests.
func WithHTTPClient(c *http.Client) Option {
	return func(o *clientOptions) { o.httpClient = c }
}

// newCalendarService builds a calendar API client authenticated with the
// given bearer token.
func newCalendarService(ctx context.Context, token string, opts clientOptions) (*calendar.Service, error) {
	var clientOpts []option.ClientOption
	if opts.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(opts.httpClient))
	} else {
		clientOpts = append(clientOpts,
			option.WithTokenSource(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})))
	}
	if opts.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(opts.endpoint))
	}
	svc, err := calendar.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gcal: new calendar service: %w", err)
	}
	return svc, nil
}
