package pipeline_test

import (
	"bytes"
	"context"
	"regexp"
	"testing"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/internal/pipeline"
	"github.com/alkime/callcoach/internal/pipeline/pipelinetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(reports *[]pipeline.Progress) pipeline.Reporter {
	return func(p pipeline.Progress) { *reports = append(*reports, p) }
}

func percents(reports []pipeline.Progress) []int {
	out := make([]int, len(reports))
	for i, r := range reports {
		out[i] = r.Percent
	}
	return out
}

func TestValidateUpload(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		size    int64
		source  domain.Source
		wantErr bool
	}{
		{name: "mp3", mime: "audio/mpeg", size: 1024, source: domain.SourceUpload},
		{name: "flac", mime: "audio/flac", size: 1024, source: domain.SourceUpload},
		{name: "at limit", mime: "audio/wav", size: pipeline.MaxUploadBytes, source: domain.SourceUpload},
		{name: "over limit", mime: "audio/wav", size: pipeline.MaxUploadBytes + 1, source: domain.SourceUpload, wantErr: true},
		{name: "text", mime: "text/plain", size: 10, source: domain.SourceUpload, wantErr: true},
		{name: "webm upload", mime: "audio/webm", size: 10, source: domain.SourceUpload, wantErr: true},
		{name: "webm recording", mime: "audio/webm;codecs=opus", size: 10, source: domain.SourceRecording},
		{name: "long recording", mime: "audio/mpeg", size: pipeline.MaxUploadBytes * 2, source: domain.SourceRecording},
		{name: "empty", mime: "audio/mpeg", size: 0, source: domain.SourceUpload, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := pipeline.ValidateUpload("call", tt.mime, tt.size, tt.source)
			if tt.wantErr {
				assert.True(t, domain.IsKind(err, domain.KindValidation), "got %v", err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestUpload_StoresBytesAndRecord(t *testing.T) {
	store := pipelinetest.NewStore()
	u := pipeline.NewUploader(store, store, nil)

	data := bytes.Repeat([]byte{0xff, 0xfb, 0x90, 0x64}, 1000)
	var reports []pipeline.Progress

	asset, err := u.Upload(context.Background(), "user-1", pipeline.File{
		Name:     "call.mp3",
		MimeType: "audio/mpeg",
		Data:     data,
	}, collect(&reports))
	require.NoError(t, err)

	assert.Equal(t, "user-1", asset.OwnerID)
	assert.Equal(t, "call.mp3", asset.Filename)
	assert.Equal(t, "mp3", asset.Format)
	assert.Equal(t, domain.SourceUpload, asset.Source)
	assert.Equal(t, int64(len(data)), asset.ByteSize)
	assert.Regexp(t, regexp.MustCompile(`^user-1/\d+_[0-9a-f-]{36}\.mp3$`), asset.StoragePath)

	stored, ok := store.Blob(asset.StoragePath)
	require.True(t, ok)
	assert.Equal(t, data, stored, "stored bytes are identical to the upload")

	require.NotNil(t, asset.DurationSeconds, "CBR mp3 duration is measured")
	assert.Equal(t, []int{25, 50, 75, 100}, percents(reports))
}

func TestUpload_ValidationFailsBeforeStorage(t *testing.T) {
	store := pipelinetest.NewStore()
	u := pipeline.NewUploader(store, store, nil)

	var reports []pipeline.Progress
	_, err := u.Upload(context.Background(), "user-1", pipeline.File{
		Name:     "notes.txt",
		MimeType: "text/plain",
		Data:     []byte("hello"),
	}, collect(&reports))

	assert.True(t, domain.IsKind(err, domain.KindValidation))
	assert.Zero(t, store.BlobCount())
	assert.Empty(t, reports)
}

func TestUpload_RequiresOwner(t *testing.T) {
	store := pipelinetest.NewStore()
	u := pipeline.NewUploader(store, store, nil)

	_, err := u.Upload(context.Background(), "", pipeline.File{Name: "a.mp3", MimeType: "audio/mpeg", Data: []byte{1}}, nil)
	assert.True(t, domain.IsKind(err, domain.KindAuthentication))
	assert.Zero(t, store.BlobCount())
}

func TestUpload_InsertFailureRemovesStoredBytes(t *testing.T) {
	store := pipelinetest.NewStore()
	store.FailAssetInsert = true
	u := pipeline.NewUploader(store, store, nil)

	var reports []pipeline.Progress
	_, err := u.Upload(context.Background(), "user-1", pipeline.File{
		Name:     "call.wav",
		MimeType: "audio/wav",
		Data:     []byte("RIFF"),
	}, collect(&reports))

	assert.True(t, domain.IsKind(err, domain.KindPersistence))
	assert.Zero(t, store.BlobCount())
	require.Len(t, store.Deleted, 1)
	assert.NotContains(t, percents(reports), 100)
}

func TestUpload_StorageFailure(t *testing.T) {
	store := pipelinetest.NewStore()
	store.FailPut = true
	u := pipeline.NewUploader(store, store, nil)

	_, err := u.Upload(context.Background(), "user-1", pipeline.File{Name: "a.ogg", MimeType: "audio/ogg", Data: []byte{1}}, nil)
	assert.True(t, domain.IsKind(err, domain.KindPersistence))
}

func TestUpload_RecordingKeepsGivenDuration(t *testing.T) {
	store := pipelinetest.NewStore()
	u := pipeline.NewUploader(store, store, nil)

	seconds := 42.0
	asset, err := u.Upload(context.Background(), "user-1", pipeline.File{
		Name:            "recording.webm",
		MimeType:        "audio/webm",
		Data:            []byte{0x1a, 0x45, 0xdf, 0xa3},
		Source:          domain.SourceRecording,
		DurationSeconds: &seconds,
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.SourceRecording, asset.Source)
	assert.Equal(t, "webm", asset.Format)
	require.NotNil(t, asset.DurationSeconds)
	assert.InDelta(t, 42.0, *asset.DurationSeconds, 1e-9)
}

func TestMimeTypeFor(t *testing.T) {
	assert.Equal(t, "audio/mpeg", pipeline.MimeTypeFor("call.MP3"))
	assert.Equal(t, "audio/mp4", pipeline.MimeTypeFor("/tmp/call.m4a"))
	assert.Equal(t, "audio/webm", pipeline.MimeTypeFor("clip.webm"))
	assert.Empty(t, pipeline.MimeTypeFor("notes.txt"))
}
