package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentigo/internal/artifact"
	"sentigo/internal/csvio"
	"sentigo/internal/inference"
	"sentigo/internal/metrics"
	"sentigo/internal/model"
	"sentigo/internal/repository"
)

var (
	ErrSessionNotFound  = errors.New("analysis session not found")
	ErrResultNotFound   = errors.New("analysis result not found")
	ErrSessionEmpty     = errors.New("analysis session has no rows")
	ErrNoLabeledResults = errors.New("no rows carry both a true and a predicted label")
	ErrTextTooLong      = errors.New("text exceeds the configured maximum length")
)

// Predictor is the inference surface the service depends on. Dispatch is the
// tiered batch path; Predict handles one ad-hoc text.
type Predictor interface {
	Predict(ctx context.Context, text string) (*inference.Prediction, error)
	Dispatch(ctx context.Context, texts []string) ([]inference.Prediction, error)
}

type StatsCache interface {
	GetStats(ctx context.Context, sessionID uint) (*model.SessionStats, bool, error)
	SetStats(ctx context.Context, sessionID uint, stats *model.SessionStats) error
	Invalidate(ctx context.Context, sessionID uint) error
}

type PredictionEventPublisher interface {
	Publish(ctx context.Context, event model.PredictionRunEvent) error
}

// ValidationArtifacts persists validation reports; listing and retrieval go
// through the artifact store directly.
type ValidationArtifacts interface {
	SaveValidation(ctx context.Context, report artifact.ValidationReport) (string, error)
}

type UploadLimits struct {
	MaxBytes      int64
	MaxTextLength int
	MaxRows       int
}

type AnalysisService struct {
	sessionRepo *repository.SessionRepository
	resultRepo  *repository.ResultRepository
	predictor   Predictor
	statsCache  StatsCache
	validations ValidationArtifacts
	publisher   PredictionEventPublisher
	limits      UploadLimits
}

func NewAnalysisService(
	sessionRepo *repository.SessionRepository,
	resultRepo *repository.ResultRepository,
	predictor Predictor,
	statsCache StatsCache,
	validations ValidationArtifacts,
	publisher PredictionEventPublisher,
	limits UploadLimits,
) *AnalysisService {
	return &AnalysisService{
		sessionRepo: sessionRepo,
		resultRepo:  resultRepo,
		predictor:   predictor,
		statsCache:  statsCache,
		validations: validations,
		publisher:   publisher,
		limits:      limits,
	}
}

type UploadResult struct {
	SessionID   uint   `json:"session_id"`
	Filename    string `json:"filename"`
	RowsCount   int    `json:"rows_count"`
	SkippedRows []int  `json:"skipped_rows"`
}

// Upload parses a CSV stream and persists it as a new session with its rows,
// atomically. Parsing failures surface as *csvio.ValidationError.
func (s *AnalysisService) Upload(ctx context.Context, userID uint, filename string, file io.Reader) (*UploadResult, error) {
	parsed, err := csvio.Parse(file, csvio.ParseOptions{
		MaxBytes:      s.limits.MaxBytes,
		MaxTextLength: s.limits.MaxTextLength,
		MaxRows:       s.limits.MaxRows,
	})
	if err != nil {
		return nil, err
	}

	session := &model.AnalysisSession{
		UserID:   userID,
		Filename: filename,
	}
	rows := make([]model.TextAnalysis, 0, len(parsed.Rows))
	for _, row := range parsed.Rows {
		rows = append(rows, model.TextAnalysis{
			Text:      row.Text,
			Source:    row.Source,
			TrueLabel: row.TrueLabel,
		})
	}
	if err := s.sessionRepo.CreateWithRows(session, rows); err != nil {
		return nil, err
	}

	return &UploadResult{
		SessionID:   session.ID,
		Filename:    session.Filename,
		RowsCount:   len(rows),
		SkippedRows: parsed.SkippedRows,
	}, nil
}

// AnalyzeText runs one ad-hoc prediction outside any session.
func (s *AnalysisService) AnalyzeText(ctx context.Context, text string) (*inference.Prediction, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrInvalidInput
	}
	if s.limits.MaxTextLength > 0 && len([]rune(text)) > s.limits.MaxTextLength {
		return nil, ErrTextTooLong
	}
	return s.predictor.Predict(ctx, text)
}

type RunResult struct {
	SessionID      uint   `json:"session_id"`
	PredictionID   string `json:"prediction_id"`
	ProcessedCount int    `json:"processed_count"`
	ProcessingMs   int64  `json:"processing_time_ms"`
}

// RunSession predicts every row of the session in id order and writes the
// results back positionally in one transaction. Any chunk failure voids the
// whole run; no partial predictions are recorded.
func (s *AnalysisService) RunSession(ctx context.Context, sessionID uint) (*RunResult, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	rows, err := s.resultRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrSessionEmpty
	}

	texts := make([]string, len(rows))
	for i, row := range rows {
		texts[i] = row.Text
	}

	// A large batch outlives any sane client timeout; the run keeps going
	// if the caller disconnects. The dispatcher applies its own deadline.
	started := time.Now()
	predictions, err := s.predictor.Dispatch(context.WithoutCancel(ctx), texts)
	if err != nil {
		return nil, fmt.Errorf("batch prediction failed: %w", err)
	}

	updates := make([]repository.PredictionUpdate, len(predictions))
	for i, pred := range predictions {
		updates[i] = repository.PredictionUpdate{Label: pred.Label, Confidence: pred.Confidence}
	}
	if err := s.resultRepo.RecordPredictions(sessionID, updates); err != nil {
		return nil, err
	}
	processingMs := time.Since(started).Milliseconds()

	s.invalidateStats(ctx, sessionID)

	result := &RunResult{
		SessionID:      sessionID,
		PredictionID:   uuid.NewString(),
		ProcessedCount: len(predictions),
		ProcessingMs:   processingMs,
	}

	// Artifact persistence is best-effort: the run already succeeded.
	if s.publisher != nil {
		event := model.PredictionRunEvent{
			SessionID:    sessionID,
			PredictionID: result.PredictionID,
			RowsCount:    result.ProcessedCount,
			ProcessingMs: result.ProcessingMs,
			CreatedAt:    time.Now(),
		}
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("publish prediction run event for session %d failed: %v", sessionID, err)
		}
	}

	return result, nil
}

type ValidationResult struct {
	SessionID    uint                   `json:"session_id"`
	ValidationID string                 `json:"validation_id"`
	MacroF1      float64                `json:"macro_f1"`
	ClassMetrics []metrics.ClassMetrics `json:"class_metrics"`
	RowsCount    int                    `json:"rows_count"`
	SkippedRows  []int                  `json:"skipped_rows"`
}

// Validate scores predictions against ground truth over the rows that carry
// both labels. SkippedRows lists the 1-based positions (id order) of rows
// excluded for missing either label.
func (s *AnalysisService) Validate(ctx context.Context, sessionID uint) (*ValidationResult, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	rows, err := s.resultRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}

	var yTrue, yPred []int
	var skipped []int
	for i, row := range rows {
		if row.TrueLabel == nil || row.PredLabel == nil {
			skipped = append(skipped, i+1)
			continue
		}
		yTrue = append(yTrue, *row.TrueLabel)
		yPred = append(yPred, *row.PredLabel)
	}
	if len(yTrue) == 0 {
		return nil, ErrNoLabeledResults
	}

	report := metrics.ComputeMacroF1(yTrue, yPred)

	validationID, err := s.validations.SaveValidation(ctx, artifact.ValidationReport{
		MacroF1:      report.MacroF1,
		ClassMetrics: report.ClassMetrics,
		RowsCount:    len(yTrue),
		SkippedRows:  skipped,
		CreatedAt:    time.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}

	return &ValidationResult{
		SessionID:    sessionID,
		ValidationID: validationID,
		MacroF1:      report.MacroF1,
		ClassMetrics: report.ClassMetrics,
		RowsCount:    len(yTrue),
		SkippedRows:  skipped,
	}, nil
}

// ExportRecords returns the session's rows in export shape, id order.
func (s *AnalysisService) ExportRecords(ctx context.Context, sessionID uint) ([]csvio.ExportRecord, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	rows, err := s.resultRepo.ListBySession(sessionID)
	if err != nil {
		return nil, err
	}
	records := make([]csvio.ExportRecord, len(rows))
	for i, row := range rows {
		records[i] = csvio.ExportRecord{
			ID:         row.ID,
			Text:       row.Text,
			PredLabel:  row.PredLabel,
			Confidence: row.Confidence,
			Source:     row.Source,
			TrueLabel:  row.TrueLabel,
		}
	}
	return records, nil
}

// ExportCSV renders the session as a CSV document.
func (s *AnalysisService) ExportCSV(ctx context.Context, sessionID uint) (string, error) {
	records, err := s.ExportRecords(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return csvio.ExportCSV(records)
}

type SessionSummary struct {
	SessionID     uint      `json:"session_id"`
	Filename      string    `json:"filename"`
	CreatedAt     time.Time `json:"created_at"`
	TextsCount    int64     `json:"texts_count"`
	AvgConfidence *float64  `json:"avg_confidence"`
}

// ListSessions returns the newest-first session page with per-session
// row counts and average confidence.
func (s *AnalysisService) ListSessions(ctx context.Context, limit, offset int) ([]SessionSummary, int64, error) {
	sessions, total, err := s.sessionRepo.List(limit, offset)
	if err != nil {
		return nil, 0, err
	}

	summaries := make([]SessionSummary, 0, len(sessions))
	for _, session := range sessions {
		count, err := s.resultRepo.CountBySession(session.ID)
		if err != nil {
			return nil, 0, err
		}
		avg, err := s.resultRepo.AvgConfidenceBySession(session.ID)
		if err != nil {
			return nil, 0, err
		}
		summaries = append(summaries, SessionSummary{
			SessionID:     session.ID,
			Filename:      session.Filename,
			CreatedAt:     session.CreatedAt,
			TextsCount:    count,
			AvgConfidence: avg,
		})
	}
	return summaries, total, nil
}

// SessionStats serves the dashboard aggregates cache-aside.
func (s *AnalysisService) SessionStats(ctx context.Context, sessionID uint) (*model.SessionStats, error) {
	if s.statsCache != nil {
		cached, hit, err := s.statsCache.GetStats(ctx, sessionID)
		if err != nil {
			log.Printf("read stats cache for session %d failed: %v", sessionID, err)
		} else if hit {
			return cached, nil
		}
	}

	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	stats, err := s.resultRepo.Stats(session)
	if err != nil {
		return nil, err
	}

	if s.statsCache != nil {
		if err := s.statsCache.SetStats(ctx, sessionID, stats); err != nil {
			log.Printf("write stats cache for session %d failed: %v", sessionID, err)
		}
	}
	return stats, nil
}

type ResultsPage struct {
	Results []model.TextAnalysis `json:"results"`
	Total   int64                `json:"total"`
	Limit   int                  `json:"limit"`
	Offset  int                  `json:"offset"`
}

func (s *AnalysisService) QueryResults(ctx context.Context, sessionID uint, filters repository.ResultFilters, limit, offset int) (*ResultsPage, error) {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	rows, total, err := s.resultRepo.Query(sessionID, filters, limit, offset)
	if err != nil {
		return nil, err
	}
	return &ResultsPage{Results: rows, Total: total, Limit: limit, Offset: offset}, nil
}

// PatchTrueLabel sets one row's ground-truth label and drops the session's
// cached stats.
func (s *AnalysisService) PatchTrueLabel(ctx context.Context, resultID uint, trueLabel int) (*model.TextAnalysis, error) {
	if trueLabel < 0 || trueLabel > 2 {
		return nil, ErrInvalidInput
	}

	row, err := s.resultRepo.GetByID(resultID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrResultNotFound
	}

	ok, err := s.resultRepo.UpdateTrueLabel(resultID, trueLabel)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrResultNotFound
	}

	s.invalidateStats(ctx, row.SessionID)

	row.TrueLabel = &trueLabel
	return row, nil
}

func (s *AnalysisService) DeleteSession(ctx context.Context, sessionID uint) error {
	session, err := s.sessionRepo.GetByID(sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		return ErrSessionNotFound
	}
	if err := s.sessionRepo.Delete(sessionID); err != nil {
		return err
	}
	s.invalidateStats(ctx, sessionID)
	return nil
}

func (s *AnalysisService) invalidateStats(ctx context.Context, sessionID uint) {
	if s.statsCache == nil {
		return
	}
	if err := s.statsCache.Invalidate(ctx, sessionID); err != nil {
		log.Printf("invalidate stats cache for session %d failed: %v", sessionID, err)
	}
}
