package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/google/uuid"
)

// MaxUploadBytes is the largest file accepted from an upload.
const MaxUploadBytes = 25 * 1024 * 1024

// uploadFormats maps accepted MIME types to a fallback file extension.
var uploadFormats = map[string]string{
	"audio/mpeg": "mp3",
	"audio/wav":  "wav",
	"audio/mp4":  "m4a",
	"audio/flac": "flac",
	"audio/ogg":  "ogg",
}

// recordingFormats are accepted in addition for browser recordings.
var recordingFormats = map[string]string{
	"audio/webm": "webm",
}

func formatFor(mimeType string, source domain.Source) (string, bool) {
	mimeType = strings.ToLower(strings.TrimSpace(strings.SplitN(mimeType, ";", 2)[0]))
	if ext, ok := uploadFormats[mimeType]; ok {
		return ext, true
	}
	if source == domain.SourceRecording {
		ext, ok := recordingFormats[mimeType]
		return ext, ok
	}
	return "", false
}

// MimeTypeFor guesses an accepted MIME type from a file extension. It
// returns "" for unknown extensions.
func MimeTypeFor(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	for _, formats := range []map[string]string{uploadFormats, recordingFormats} {
		for mime, e := range formats {
			if e == ext {
				return mime
			}
		}
	}
	if ext == "mpga" || ext == "mpeg" {
		return "audio/mpeg"
	}
	return ""
}

// ValidateUpload checks a file's type and size without reading it.
// Recordings are not held to the upload size limit.
func ValidateUpload(name, mimeType string, size int64, source domain.Source) error {
	if _, ok := formatFor(mimeType, source); !ok {
		return domain.ValidationError("Unsupported file format. Please upload MP3, WAV, M4A, FLAC, or OGG files.")
	}
	if size <= 0 {
		return domain.ValidationError("file " + name + " is empty")
	}
	if source != domain.SourceRecording && size > MaxUploadBytes {
		return domain.ValidationError("File size exceeds 25MB limit.")
	}
	return nil
}

// File is an audio file handed to the Uploader.
type File struct {
	Name     string
	MimeType string
	Data     []byte
	// Source defaults to upload.
	Source domain.Source
	// DurationSeconds is used as is when set; otherwise it is measured.
	DurationSeconds *float64
}

// Uploader stores audio and records it as an AudioAsset.
type Uploader struct {
	blobs  BlobStore
	assets AssetRepository
	logger *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewUploader creates an Uploader.
func NewUploader(blobs BlobStore, assets AssetRepository, logger *slog.Logger) *Uploader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		blobs:  blobs,
		assets: assets,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Upload validates f, stores its bytes, then inserts the asset row. If the
// insert fails the stored bytes are removed again.
func (u *Uploader) Upload(ctx context.Context, ownerID string, f File, report Reporter) (*domain.AudioAsset, error) {
	if err := requireOwner(ownerID); err != nil {
		return nil, err
	}

	source := f.Source
	if source == "" {
		source = domain.SourceUpload
	}
	if !source.Valid() {
		return nil, domain.ValidationError("unknown source: " + string(source))
	}

	if err := ValidateUpload(f.Name, f.MimeType, int64(len(f.Data)), source); err != nil {
		return nil, err
	}

	progress := newTracker(StageUpload, report)

	format := strings.TrimPrefix(strings.ToLower(filepath.Ext(f.Name)), ".")
	if format == "" {
		format, _ = formatFor(f.MimeType, source)
	}
	storagePath := fmt.Sprintf("%s/%d_%s.%s", ownerID, u.now().UnixMilli(), u.newID(), format)

	progress.step(25)

	if err := u.blobs.Put(ctx, storagePath, f.MimeType, f.Data); err != nil {
		return nil, asKind(err, domain.PersistenceError, "Upload failed")
	}

	progress.step(50)

	duration := f.DurationSeconds
	if duration == nil {
		duration = measureDuration(f.Data, f.MimeType)
	}

	progress.step(75)

	asset, err := u.assets.InsertAsset(ctx, &domain.AudioAsset{
		OwnerID:         ownerID,
		Filename:        f.Name,
		StoragePath:     storagePath,
		ByteSize:        int64(len(f.Data)),
		DurationSeconds: duration,
		Format:          format,
		MimeType:        f.MimeType,
		Source:          source,
	})
	if err != nil {
		if delErr := u.blobs.Delete(ctx, storagePath); delErr != nil {
			u.logger.Warn("failed to remove stored audio after insert failure",
				"path", storagePath, "error", delErr)
		}
		return nil, domain.PersistenceError("Failed to save file metadata", err)
	}

	progress.step(100)

	u.logger.Info("audio stored",
		"asset", asset.ID,
		"source", source,
		"bytes", asset.ByteSize)

	return asset, nil
}
