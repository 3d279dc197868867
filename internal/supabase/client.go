// Package supabase talks to the hosted auth, object storage and table REST
// endpoints that back the coaching workflow.
package supabase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	gotrue "github.com/supabase-community/gotrue-go"
	postgrest "github.com/supabase-community/postgrest-go"
	storage "github.com/supabase-community/storage-go"
)

// Config holds the project settings.
type Config struct {
	// URL is the project URL (e.g., https://xyz.supabase.co).
	URL string
	// AnonKey identifies the project when validating user sessions.
	AnonKey string
	// ServiceKey is the service-role key used for storage and table access.
	ServiceKey string
	// Bucket is the storage bucket for audio objects.
	Bucket string
}

// Client implements the storage and repository interfaces of the pipeline
// over the platform's REST APIs.
type Client struct {
	baseURL    string
	serviceKey string
	bucket     string

	rest *postgrest.Client
	auth gotrue.Client
}

// New creates a platform client.
func New(cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase: project URL is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("supabase: bucket is required")
	}

	baseURL := strings.TrimRight(cfg.URL, "/")

	rest := postgrest.NewClient(baseURL+"/rest/v1", "public", nil).
		SetApiKey(cfg.ServiceKey).
		SetAuthToken(cfg.ServiceKey)
	if rest.ClientError != nil {
		return nil, rest.ClientError
	}

	auth := gotrue.New("", cfg.AnonKey).
		WithCustomGoTrueURL(baseURL + "/auth/v1").
		WithClient(http.Client{Timeout: 30 * time.Second})

	return &Client{
		baseURL:    baseURL,
		serviceKey: cfg.ServiceKey,
		bucket:     cfg.Bucket,
		rest:       rest,
		auth:       auth,
	}, nil
}

// objects returns a storage client for one call. The storage client keeps
// per-upload headers on its transport, so instances are not shared.
func (c *Client) objects() *storage.Client {
	return storage.NewClient(c.baseURL+"/storage/v1", c.serviceKey, map[string]string{
		"apikey": c.serviceKey,
	})
}

// from starts a table query once ctx is still live. The REST client does not
// take a context, so cancellation is only observed between calls.
func (c *Client) from(ctx context.Context, table string) (*postgrest.QueryBuilder, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.rest.From(table), nil
}
