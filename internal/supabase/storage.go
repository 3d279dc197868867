package supabase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
	storage "github.com/supabase-community/storage-go"
)

// isMissingObject reports whether err is the storage API's not-found reply.
// The API puts the status in a string "statusCode" field the client does not
// decode, so the message is checked as well.
func isMissingObject(err error) bool {
	var serr *storage.StorageError
	if !errors.As(err, &serr) {
		return false
	}
	return serr.Status == http.StatusNotFound ||
		strings.Contains(strings.ToLower(serr.Message), "not found")
}

// Put uploads data to path. Existing objects are never overwritten.
func (c *Client) Put(ctx context.Context, path, mimeType string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	upsert := false
	cacheControl := "3600"
	_, err := c.objects().UploadFile(c.bucket, path, bytes.NewReader(data), storage.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &mimeType,
		Upsert:       &upsert,
	})
	if err != nil {
		return domain.PersistenceError("failed to store audio", fmt.Errorf("storage: supabase upload: %w", err))
	}

	return nil
}

// Get downloads the object at path.
func (c *Client) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := c.objects().DownloadFile(c.bucket, path)
	if isMissingObject(err) {
		return nil, domain.NotFoundError("audio object not found: " + path)
	}
	if err != nil {
		return nil, domain.PersistenceError("failed to fetch audio", fmt.Errorf("storage: supabase download: %w", err))
	}

	return data, nil
}

// Delete removes an object. Returns nil if the object does not exist.
func (c *Client) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.objects().RemoveFile(c.bucket, []string{path})
	if err != nil && !isMissingObject(err) {
		return domain.PersistenceError("failed to delete audio", fmt.Errorf("storage: supabase delete: %w", err))
	}

	return nil
}
