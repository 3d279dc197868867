// Package history lists a user's past calls and reopens them in a workflow
// controller.
package history

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/pkg/collections"
)

// Status is how far a call got through the pipeline.
type Status string

const (
	StatusUploaded    Status = "Uploaded"
	StatusTranscribed Status = "Transcribed"
	StatusComplete    Status = "Complete"
)

// ParseStatus accepts a status name in any case. The empty string matches
// every status.
func ParseStatus(s string) (Status, error) {
	for _, st := range []Status{StatusUploaded, StatusTranscribed, StatusComplete} {
		if strings.EqualFold(s, string(st)) {
			return st, nil
		}
	}
	if s == "" {
		return "", nil
	}
	return "", domain.ValidationError("unknown status " + s)
}

// StatusOf derives the status of a record.
func StatusOf(rec domain.HistoryRecord) Status {
	switch {
	case rec.Analysis != nil:
		return StatusComplete
	case rec.Transcript != nil:
		return StatusTranscribed
	default:
		return StatusUploaded
	}
}

// Entry is one row of the history list.
type Entry struct {
	domain.HistoryRecord
	Status Status `json:"status"`
}

// Filter narrows the list. Zero fields match everything. Query matches the
// filename or the transcript text, ignoring case.
type Filter struct {
	Query  string
	Status Status
	Source domain.Source
}

func (f Filter) match(e Entry) bool {
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Source != "" && e.Asset.Source != f.Source {
		return false
	}
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		if strings.Contains(strings.ToLower(e.Asset.Filename), q) {
			return true
		}
		return e.Transcript != nil && strings.Contains(strings.ToLower(e.Transcript.Text), q)
	}
	return true
}

// Lister reads a user's records, newest first.
type Lister interface {
	ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryRecord, error)
}

// Selector receives a reopened record. *workflow.Controller implements it.
type Selector interface {
	SelectRecord(rec domain.HistoryRecord) error
}

// Browser reads history for the views.
type Browser struct {
	repo   Lister
	logger *slog.Logger
}

// NewBrowser creates a Browser.
func NewBrowser(repo Lister, logger *slog.Logger) *Browser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Browser{repo: repo, logger: logger}
}

// List returns the owner's entries that match f, newest first.
func (b *Browser) List(ctx context.Context, ownerID string, f Filter) ([]Entry, error) {
	if ownerID == "" {
		return nil, domain.AuthenticationError("user not authenticated")
	}

	records, err := b.repo.ListHistory(ctx, ownerID)
	if err != nil {
		var de *domain.Error
		if errors.As(err, &de) {
			return nil, err
		}
		return nil, domain.PersistenceError("failed to load history", err)
	}

	entries := collections.Apply(records, func(rec domain.HistoryRecord) Entry {
		return Entry{HistoryRecord: rec, Status: StatusOf(rec)}
	})
	entries = collections.Filter(entries, f.match)

	b.logger.Debug("history listed", "owner", ownerID, "total", len(records), "matched", len(entries))

	return entries, nil
}

// Open finds the owner's record for assetID and hands it to sel.
func (b *Browser) Open(ctx context.Context, ownerID, assetID string, sel Selector) (*Entry, error) {
	entries, err := b.List(ctx, ownerID, Filter{})
	if err != nil {
		return nil, err
	}

	for _, e := range entries {
		if e.Asset.ID != assetID {
			continue
		}
		if err := sel.SelectRecord(e.HistoryRecord); err != nil {
			return nil, err
		}
		return &e, nil
	}

	return nil, domain.NotFoundError("Audio file not found")
}
