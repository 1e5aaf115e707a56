package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"sentigo/internal/artifact"
	"sentigo/internal/csvio"
	"sentigo/internal/inference"
	"sentigo/internal/model"
	"sentigo/internal/repository"
)

type fakePredictor struct {
	predictCalls  int
	dispatchCalls int
	dispatchErr   error
	labelFor      func(text string) int
}

func (f *fakePredictor) Predict(_ context.Context, text string) (*inference.Prediction, error) {
	f.predictCalls++
	return &inference.Prediction{Label: 2, LabelName: "positive", Confidence: 0.9}, nil
}

func (f *fakePredictor) Dispatch(_ context.Context, texts []string) ([]inference.Prediction, error) {
	f.dispatchCalls++
	if f.dispatchErr != nil {
		return nil, f.dispatchErr
	}
	preds := make([]inference.Prediction, len(texts))
	for i, text := range texts {
		label := 1
		if f.labelFor != nil {
			label = f.labelFor(text)
		}
		preds[i] = inference.Prediction{Label: label, Confidence: 0.8}
	}
	return preds, nil
}

type fakeStatsCache struct {
	entries     map[uint]*model.SessionStats
	invalidated []uint
	sets        int
	hits        int
}

func newFakeStatsCache() *fakeStatsCache {
	return &fakeStatsCache{entries: map[uint]*model.SessionStats{}}
}

func (f *fakeStatsCache) GetStats(_ context.Context, sessionID uint) (*model.SessionStats, bool, error) {
	stats, ok := f.entries[sessionID]
	if ok {
		f.hits++
	}
	return stats, ok, nil
}

func (f *fakeStatsCache) SetStats(_ context.Context, sessionID uint, stats *model.SessionStats) error {
	f.sets++
	f.entries[sessionID] = stats
	return nil
}

func (f *fakeStatsCache) Invalidate(_ context.Context, sessionID uint) error {
	f.invalidated = append(f.invalidated, sessionID)
	delete(f.entries, sessionID)
	return nil
}

type fakeValidations struct {
	saved []artifact.ValidationReport
}

func (f *fakeValidations) SaveValidation(_ context.Context, report artifact.ValidationReport) (string, error) {
	f.saved = append(f.saved, report)
	return fmt.Sprintf("validation-%d", len(f.saved)), nil
}

type fakePublisher struct {
	events []model.PredictionRunEvent
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, event model.PredictionRunEvent) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type serviceFixture struct {
	svc         *AnalysisService
	sessionRepo *repository.SessionRepository
	resultRepo  *repository.ResultRepository
	predictor   *fakePredictor
	cache       *fakeStatsCache
	validations *fakeValidations
	publisher   *fakePublisher
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.User{}, &model.AnalysisSession{}, &model.TextAnalysis{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	f := &serviceFixture{
		sessionRepo: repository.NewSessionRepository(db),
		resultRepo:  repository.NewResultRepository(db),
		predictor:   &fakePredictor{},
		cache:       newFakeStatsCache(),
		validations: &fakeValidations{},
		publisher:   &fakePublisher{},
	}
	f.svc = NewAnalysisService(
		f.sessionRepo, f.resultRepo, f.predictor, f.cache, f.validations, f.publisher,
		UploadLimits{MaxBytes: 1 << 20, MaxTextLength: 10000, MaxRows: 100000},
	)
	return f
}

func (f *serviceFixture) seedSession(t *testing.T, texts ...string) uint {
	t.Helper()
	session := &model.AnalysisSession{Filename: "seed.csv"}
	require.NoError(t, f.sessionRepo.Create(session))
	rows := make([]model.TextAnalysis, 0, len(texts))
	for _, text := range texts {
		rows = append(rows, model.TextAnalysis{SessionID: session.ID, Text: text})
	}
	require.NoError(t, f.resultRepo.BulkCreate(rows))
	return session.ID
}

func TestUploadCreatesSessionAndRows(t *testing.T) {
	f := newServiceFixture(t)
	csvData := "text,source,label\ngood,twitter,2\n   ,twitter,\nbad,reviews,0\n"

	result, err := f.svc.Upload(context.Background(), 1, "reviews.csv", strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, "reviews.csv", result.Filename)
	assert.Equal(t, 2, result.RowsCount)
	assert.Equal(t, []int{3}, result.SkippedRows)

	rows, err := f.resultRepo.ListBySession(result.SessionID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "good", rows[0].Text)
	require.NotNil(t, rows[0].TrueLabel)
	assert.Equal(t, 2, *rows[0].TrueLabel)
	require.NotNil(t, rows[0].Source)
	assert.Equal(t, "twitter", *rows[0].Source)
}

func TestUploadRejectsBadLabels(t *testing.T) {
	f := newServiceFixture(t)
	csvData := "text,label\nfine,1\nbroken,5\n"

	_, err := f.svc.Upload(context.Background(), 1, "bad.csv", strings.NewReader(csvData))
	require.Error(t, err)
	ve, ok := csvio.AsValidationError(err)
	require.True(t, ok)
	assert.Equal(t, csvio.CodeInvalidLabels, ve.Code)
	assert.Equal(t, 3, ve.Row)

	// A rejected upload must not leave a session behind.
	_, total, err := f.sessionRepo.List(10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
}

func TestUploadRowInsertFailureLeavesNoSession(t *testing.T) {
	// Only the sessions table exists, so the row insert inside the upload
	// transaction fails after the session insert succeeded.
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.AnalysisSession{}))
	t.Cleanup(func() {
		sqlDB, err := db.DB()
		if err == nil {
			sqlDB.Close()
		}
	})

	svc := NewAnalysisService(
		repository.NewSessionRepository(db), repository.NewResultRepository(db),
		&fakePredictor{}, nil, &fakeValidations{}, nil,
		UploadLimits{MaxBytes: 1 << 20, MaxTextLength: 10000, MaxRows: 100000},
	)

	_, err = svc.Upload(context.Background(), 1, "doomed.csv", strings.NewReader("text\nrow one\n"))
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&model.AnalysisSession{}).Count(&count).Error)
	assert.Zero(t, count, "a failed upload must not leave a session behind")
}

func TestAnalyzeTextValidation(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.AnalyzeText(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.AnalyzeText(context.Background(), strings.Repeat("x", 10001))
	assert.ErrorIs(t, err, ErrTextTooLong)

	pred, err := f.svc.AnalyzeText(context.Background(), "lovely")
	require.NoError(t, err)
	assert.Equal(t, 2, pred.Label)
	assert.Equal(t, 1, f.predictor.predictCalls)
}

func TestRunSessionWritesPredictionsInOrder(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "alpha", "beta", "gamma")
	f.predictor.labelFor = func(text string) int {
		if text == "beta" {
			return 0
		}
		return 2
	}

	result, err := f.svc.RunSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.ProcessedCount)
	assert.NotEmpty(t, result.PredictionID)

	rows, err := f.resultRepo.ListBySession(sessionID)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, *rows[0].PredLabel)
	assert.Equal(t, 0, *rows[1].PredLabel)
	assert.Equal(t, 2, *rows[2].PredLabel)

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, sessionID, f.publisher.events[0].SessionID)
	assert.Equal(t, result.PredictionID, f.publisher.events[0].PredictionID)
	assert.Equal(t, 3, f.publisher.events[0].RowsCount)

	assert.Contains(t, f.cache.invalidated, sessionID)
}

func TestRunSessionMissingAndEmpty(t *testing.T) {
	f := newServiceFixture(t)

	_, err := f.svc.RunSession(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	session := &model.AnalysisSession{Filename: "empty.csv"}
	require.NoError(t, f.sessionRepo.Create(session))
	_, err = f.svc.RunSession(context.Background(), session.ID)
	assert.ErrorIs(t, err, ErrSessionEmpty)
}

func TestRunSessionDispatchFailureLeavesRowsUntouched(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "one", "two")
	f.predictor.dispatchErr = errors.New("inference unreachable")

	_, err := f.svc.RunSession(context.Background(), sessionID)
	require.Error(t, err)

	rows, err := f.resultRepo.ListBySession(sessionID)
	require.NoError(t, err)
	for _, row := range rows {
		assert.Nil(t, row.PredLabel)
	}
	assert.Empty(t, f.publisher.events)
}

func TestRunSessionPublishFailureIsNonFatal(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "solo")
	f.publisher.err = errors.New("broker down")

	result, err := f.svc.RunSession(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ProcessedCount)
}

func TestValidateComputesReportAndPersistsArtifact(t *testing.T) {
	f := newServiceFixture(t)
	session := &model.AnalysisSession{Filename: "val.csv"}
	require.NoError(t, f.sessionRepo.Create(session))
	rows := []model.TextAnalysis{
		{SessionID: session.ID, Text: "a", PredLabel: intPtr(0), TrueLabel: intPtr(0)},
		{SessionID: session.ID, Text: "b", PredLabel: intPtr(1)},
		{SessionID: session.ID, Text: "c", PredLabel: intPtr(2), TrueLabel: intPtr(2)},
		{SessionID: session.ID, Text: "d", TrueLabel: intPtr(1)},
	}
	require.NoError(t, f.resultRepo.BulkCreate(rows))

	result, err := f.svc.Validate(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, "validation-1", result.ValidationID)
	// Classes 0 and 2 score perfectly; class 1 never appears and scores 0.
	assert.InDelta(t, 0.6667, result.MacroF1, 1e-9)
	assert.Equal(t, 2, result.RowsCount)
	assert.Equal(t, []int{2, 4}, result.SkippedRows)
	require.Len(t, result.ClassMetrics, 3)

	require.Len(t, f.validations.saved, 1)
	assert.Equal(t, result.MacroF1, f.validations.saved[0].MacroF1)
	assert.Equal(t, 2, f.validations.saved[0].RowsCount)
}

func TestValidateRequiresLabeledRows(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "unlabeled")

	_, err := f.svc.Validate(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrNoLabeledResults)
}

func TestExportCSVColumnOrder(t *testing.T) {
	f := newServiceFixture(t)
	session := &model.AnalysisSession{Filename: "export.csv"}
	require.NoError(t, f.sessionRepo.Create(session))
	rows := []model.TextAnalysis{
		{SessionID: session.ID, Text: "hello", PredLabel: intPtr(2), Confidence: floatPtr(0.9)},
		{SessionID: session.ID, Text: "bye", PredLabel: intPtr(0), Confidence: floatPtr(0.7)},
	}
	require.NoError(t, f.resultRepo.BulkCreate(rows))

	csvOut, err := f.svc.ExportCSV(context.Background(), session.ID)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(csvOut), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "text,pred_label,confidence", lines[0])
	assert.Equal(t, "hello,2,0.9000", lines[1])

	_, err = f.svc.ExportCSV(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestListSessionsSummaries(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "x", "y")
	require.NoError(t, f.resultRepo.RecordPredictions(sessionID, []repository.PredictionUpdate{
		{Label: 1, Confidence: 0.6},
		{Label: 2, Confidence: 0.8},
	}))

	summaries, total, err := f.svc.ListSessions(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, summaries, 1)
	assert.Equal(t, int64(2), summaries[0].TextsCount)
	require.NotNil(t, summaries[0].AvgConfidence)
	assert.InDelta(t, 0.7, *summaries[0].AvgConfidence, 1e-9)
}

func TestSessionStatsCacheAside(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "a", "b")

	stats, err := f.svc.SessionStats(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalTexts)
	assert.Equal(t, 1, f.cache.sets)
	assert.Equal(t, 0, f.cache.hits)

	// Second read is served from the cache.
	_, err = f.svc.SessionStats(context.Background(), sessionID)
	require.NoError(t, err)
	assert.Equal(t, 1, f.cache.sets)
	assert.Equal(t, 1, f.cache.hits)

	_, err = f.svc.SessionStats(context.Background(), 999)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestQueryResults(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "good stuff", "bad stuff", "meh")

	page, err := f.svc.QueryResults(context.Background(), sessionID, repository.ResultFilters{Search: "stuff"}, 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Len(t, page.Results, 2)

	_, err = f.svc.QueryResults(context.Background(), 999, repository.ResultFilters{}, 10, 0)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestPatchTrueLabel(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "only")
	rows, err := f.resultRepo.ListBySession(sessionID)
	require.NoError(t, err)

	_, err = f.svc.PatchTrueLabel(context.Background(), rows[0].ID, 3)
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.PatchTrueLabel(context.Background(), 999, 1)
	assert.ErrorIs(t, err, ErrResultNotFound)

	row, err := f.svc.PatchTrueLabel(context.Background(), rows[0].ID, 1)
	require.NoError(t, err)
	require.NotNil(t, row.TrueLabel)
	assert.Equal(t, 1, *row.TrueLabel)
	assert.Contains(t, f.cache.invalidated, sessionID)
}

func TestDeleteSession(t *testing.T) {
	f := newServiceFixture(t)
	sessionID := f.seedSession(t, "a")

	require.NoError(t, f.svc.DeleteSession(context.Background(), sessionID))
	assert.Contains(t, f.cache.invalidated, sessionID)

	err := f.svc.DeleteSession(context.Background(), sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }
