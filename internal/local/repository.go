package local

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/alkime/callcoach/internal/domain"
	"github.com/alkime/callcoach/pkg/collections"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type assetModel struct {
	ID         string `gorm:"primaryKey"`
	UserID     string `gorm:"index;not null"`
	Filename   string
	FilePath   string `gorm:"uniqueIndex"`
	FileSize   int64
	Duration   *float64
	Format     string
	MimeType   string
	UploadType string
	CreatedAt  time.Time `gorm:"index"`

	Transcriptions []transcriptModel `gorm:"foreignKey:AudioFileID"`
}

func (assetModel) TableName() string { return "audio_files" }

type transcriptModel struct {
	ID                string `gorm:"primaryKey"`
	AudioFileID       string `gorm:"index;not null"`
	TranscriptionText string
	ConfidenceScore   *float64
	WordCount         *int
	Language          string
	Model             string
	DeepgramResponse  []byte
	CreatedAt         time.Time

	Analyses []analysisModel `gorm:"foreignKey:TranscriptionID"`
}

func (transcriptModel) TableName() string { return "transcriptions" }

type analysisModel struct {
	ID              string `gorm:"primaryKey"`
	TranscriptionID string `gorm:"index;not null"`
	SystemPrompt    string
	AIResponse      string
	ModelUsed       string
	TokenCount      *int
	ProcessingTime  *float64
	AnalysisType    string
	CreatedAt       time.Time
}

func (analysisModel) TableName() string { return "ai_analyses" }

// Repository stores asset, transcript and analysis rows with gorm.
type Repository struct {
	db  *gorm.DB
	now func() time.Time
}

// Open connects to a sqlite database and migrates the schema.
func Open(dsn string) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	return NewRepository(db)
}

// NewRepository migrates the schema on db.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if err := db.AutoMigrate(&assetModel{}, &transcriptModel{}, &analysisModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Repository{db: db, now: time.Now}, nil
}

// WithClock overrides the clock used for created_at.
func (r *Repository) WithClock(now func() time.Time) *Repository {
	r.now = now
	return r
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) stamp() time.Time {
	return r.now().UTC()
}

// InsertAsset stores a new asset row.
func (r *Repository) InsertAsset(ctx context.Context, a *domain.AudioAsset) (*domain.AudioAsset, error) {
	m := assetModel{
		ID:         uuid.NewString(),
		UserID:     a.OwnerID,
		Filename:   a.Filename,
		FilePath:   a.StoragePath,
		FileSize:   a.ByteSize,
		Duration:   a.DurationSeconds,
		Format:     a.Format,
		MimeType:   a.MimeType,
		UploadType: string(a.Source),
		CreatedAt:  r.stamp(),
	}

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, domain.PersistenceError("failed to save audio file record", err)
	}

	return m.toDomain(), nil
}

// GetAsset loads one asset row.
func (r *Repository) GetAsset(ctx context.Context, id string) (*domain.AudioAsset, error) {
	var m assetModel
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.NotFoundError("audio file not found")
	}
	if err != nil {
		return nil, domain.PersistenceError("failed to load audio file", err)
	}

	return m.toDomain(), nil
}

// InsertTranscript stores a new transcript row.
func (r *Repository) InsertTranscript(ctx context.Context, t *domain.Transcript) (*domain.Transcript, error) {
	m := transcriptModel{
		ID:                uuid.NewString(),
		AudioFileID:       t.AudioAssetID,
		TranscriptionText: t.Text,
		ConfidenceScore:   t.Confidence,
		WordCount:         t.WordCount,
		Language:          t.Language,
		Model:             t.ModelName,
		DeepgramResponse:  t.ProviderResponse,
		CreatedAt:         r.stamp(),
	}

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, domain.PersistenceError("failed to save transcription", err)
	}

	return m.toDomain(), nil
}

type transcriptWithOwner struct {
	transcriptModel
	OwnerID string
}

// GetTranscript loads a transcript joined to its asset's owner.
func (r *Repository) GetTranscript(ctx context.Context, id string) (*domain.Transcript, string, error) {
	var row transcriptWithOwner
	res := r.db.WithContext(ctx).
		Model(&transcriptModel{}).
		Select("transcriptions.*, audio_files.user_id AS owner_id").
		Joins("JOIN audio_files ON audio_files.id = transcriptions.audio_file_id").
		Where("transcriptions.id = ?", id).
		Scan(&row)
	if res.Error != nil {
		return nil, "", domain.PersistenceError("failed to load transcription", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, "", domain.NotFoundError("transcription not found")
	}

	return row.toDomain(), row.OwnerID, nil
}

// InsertAnalysis stores a new analysis row.
func (r *Repository) InsertAnalysis(ctx context.Context, a *domain.AnalysisResult) (*domain.AnalysisResult, error) {
	m := analysisModel{
		ID:              uuid.NewString(),
		TranscriptionID: a.TranscriptID,
		SystemPrompt:    a.RubricPrompt,
		AIResponse:      a.RawResponseText,
		ModelUsed:       a.ModelName,
		TokenCount:      a.TokenCount,
		ProcessingTime:  a.ProcessingTimeSeconds,
		AnalysisType:    a.AnalysisKind,
		CreatedAt:       r.stamp(),
	}

	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return nil, domain.PersistenceError("failed to save analysis", err)
	}

	return m.toDomain(), nil
}

// ListAnalyses returns every analysis of a transcript, newest first.
func (r *Repository) ListAnalyses(ctx context.Context, transcriptID string) ([]domain.AnalysisResult, error) {
	var rows []analysisModel
	err := r.db.WithContext(ctx).
		Where("transcription_id = ?", transcriptID).
		Order("created_at desc").
		Find(&rows).Error
	if err != nil {
		return nil, domain.PersistenceError("failed to load analyses", err)
	}

	return collections.Apply(rows, func(m analysisModel) domain.AnalysisResult { return *m.toDomain() }), nil
}

// ListHistory returns the owner's assets, newest first, with the latest
// transcript and that transcript's latest analysis.
func (r *Repository) ListHistory(ctx context.Context, ownerID string) ([]domain.HistoryRecord, error) {
	newestFirst := func(db *gorm.DB) *gorm.DB { return db.Order("created_at desc") }

	var assets []assetModel
	err := r.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("created_at desc").
		Preload("Transcriptions", newestFirst).
		Preload("Transcriptions.Analyses", newestFirst).
		Find(&assets).Error
	if err != nil {
		return nil, domain.PersistenceError("failed to load history", err)
	}

	return collections.Apply(assets, func(m assetModel) domain.HistoryRecord {
		rec := domain.HistoryRecord{Asset: *m.toDomain()}
		if len(m.Transcriptions) > 0 {
			latest := m.Transcriptions[0]
			rec.Transcript = latest.toDomain()
			if len(latest.Analyses) > 0 {
				rec.Analysis = latest.Analyses[0].toDomain()
			}
		}
		return rec
	}), nil
}

func (m assetModel) toDomain() *domain.AudioAsset {
	return &domain.AudioAsset{
		ID:              m.ID,
		OwnerID:         m.UserID,
		Filename:        m.Filename,
		StoragePath:     m.FilePath,
		ByteSize:        m.FileSize,
		DurationSeconds: m.Duration,
		Format:          m.Format,
		MimeType:        m.MimeType,
		Source:          domain.Source(m.UploadType),
		CreatedAt:       m.CreatedAt,
	}
}

func (m transcriptModel) toDomain() *domain.Transcript {
	return &domain.Transcript{
		ID:           m.ID,
		AudioAssetID: m.AudioFileID,
		Text:         m.TranscriptionText,
		Confidence:   m.ConfidenceScore,
		WordCount:    m.WordCount,
		Language:     m.Language,
		ModelName:    m.Model,
		CreatedAt:    m.CreatedAt,

		ProviderResponse: m.DeepgramResponse,
	}
}

func (m analysisModel) toDomain() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID:                    m.ID,
		TranscriptID:          m.TranscriptionID,
		RubricPrompt:          m.SystemPrompt,
		RawResponseText:       m.AIResponse,
		ModelName:             m.ModelUsed,
		TokenCount:            m.TokenCount,
		ProcessingTimeSeconds: m.ProcessingTime,
		AnalysisKind:          m.AnalysisType,
		CreatedAt:             m.CreatedAt,
	}
}
