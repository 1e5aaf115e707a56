package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"sentigo/internal/model"
)

// ErrPredictionCountMismatch reports a prediction write whose result count
// does not match the session's row count. This is a consistency failure and
// is never silently repaired.
var ErrPredictionCountMismatch = errors.New("prediction count does not match session row count")

type ResultRepository struct {
	db *gorm.DB
}

// ResultFilters are conjunctive; zero-value fields are ignored.
type ResultFilters struct {
	PredLabel     *int
	MinConfidence *float64
	MaxConfidence *float64
	Source        *string
	Search        string
}

// PredictionUpdate carries one row's prediction, aligned by position with
// the session's rows ordered by id.
type PredictionUpdate struct {
	Label      int
	Confidence float64
}

func NewResultRepository(db *gorm.DB) *ResultRepository {
	return &ResultRepository{db: db}
}

func (r *ResultRepository) BulkCreate(rows []model.TextAnalysis) error {
	if len(rows) == 0 {
		return nil
	}
	if err := r.db.CreateInBatches(rows, 500).Error; err != nil {
		return fmt.Errorf("bulk create text analyses failed: %w", err)
	}
	return nil
}

// ListBySession returns all rows of a session in insertion (id) order. This
// ordering is the alignment contract for prediction writes: callers dispatch
// exactly this slice and results are zipped back by position.
func (r *ResultRepository) ListBySession(sessionID uint) ([]model.TextAnalysis, error) {
	var rows []model.TextAnalysis
	if err := r.db.Where("session_id = ?", sessionID).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list session rows failed: %w", err)
	}
	return rows, nil
}

// ListLabeledBySession returns rows that have both a true and a predicted
// label, in id order.
func (r *ResultRepository) ListLabeledBySession(sessionID uint) ([]model.TextAnalysis, error) {
	var rows []model.TextAnalysis
	err := r.db.
		Where("session_id = ? AND true_label IS NOT NULL AND pred_label IS NOT NULL", sessionID).
		Order("id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("list labeled rows failed: %w", err)
	}
	return rows, nil
}

// RecordPredictions writes predictions positionally onto the session's rows
// inside one transaction. The slice must align 1:1 with the rows as returned
// by ListBySession; a count mismatch aborts the whole write.
func (r *ResultRepository) RecordPredictions(sessionID uint, predictions []PredictionUpdate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var rows []model.TextAnalysis
		if err := tx.Where("session_id = ?", sessionID).Order("id ASC").Find(&rows).Error; err != nil {
			return fmt.Errorf("load session rows failed: %w", err)
		}
		if len(rows) != len(predictions) {
			return fmt.Errorf("%w: %d rows, %d predictions",
				ErrPredictionCountMismatch, len(rows), len(predictions))
		}

		for i := range rows {
			pred := predictions[i]
			err := tx.Model(&model.TextAnalysis{}).
				Where("id = ?", rows[i].ID).
				Updates(map[string]interface{}{
					"pred_label": pred.Label,
					"confidence": pred.Confidence,
				}).Error
			if err != nil {
				return fmt.Errorf("record prediction for row %d failed: %w", rows[i].ID, err)
			}
		}
		return nil
	})
}

// Query applies the conjunctive filters with offset pagination and returns
// the page plus the filtered total.
func (r *ResultRepository) Query(sessionID uint, filters ResultFilters, limit, offset int) ([]model.TextAnalysis, int64, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	query := r.db.Model(&model.TextAnalysis{}).Where("session_id = ?", sessionID)
	if filters.PredLabel != nil {
		query = query.Where("pred_label = ?", *filters.PredLabel)
	}
	if filters.MinConfidence != nil {
		query = query.Where("confidence >= ?", *filters.MinConfidence)
	}
	if filters.MaxConfidence != nil {
		query = query.Where("confidence <= ?", *filters.MaxConfidence)
	}
	if filters.Source != nil {
		query = query.Where("source = ?", *filters.Source)
	}
	if search := strings.TrimSpace(filters.Search); search != "" {
		query = query.Where("LOWER(text) LIKE ?", "%"+strings.ToLower(search)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count filtered rows failed: %w", err)
	}

	var rows []model.TextAnalysis
	if err := query.Order("id ASC").Limit(limit).Offset(offset).Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("query session rows failed: %w", err)
	}
	return rows, total, nil
}

// GetByID returns nil without error when the row does not exist.
func (r *ResultRepository) GetByID(resultID uint) (*model.TextAnalysis, error) {
	var row model.TextAnalysis
	if err := r.db.First(&row, resultID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get text analysis failed: %w", err)
	}
	return &row, nil
}

// UpdateTrueLabel patches one row's ground-truth label. Returns false when
// the row does not exist.
func (r *ResultRepository) UpdateTrueLabel(resultID uint, trueLabel int) (bool, error) {
	res := r.db.Model(&model.TextAnalysis{}).
		Where("id = ?", resultID).
		Update("true_label", trueLabel)
	if res.Error != nil {
		return false, fmt.Errorf("update true label failed: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (r *ResultRepository) CountBySession(sessionID uint) (int64, error) {
	var count int64
	if err := r.db.Model(&model.TextAnalysis{}).Where("session_id = ?", sessionID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count session rows failed: %w", err)
	}
	return count, nil
}

func (r *ResultRepository) AvgConfidenceBySession(sessionID uint) (*float64, error) {
	var avg *float64
	err := r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ? AND confidence IS NOT NULL", sessionID).
		Select("AVG(confidence)").
		Scan(&avg).Error
	if err != nil {
		return nil, fmt.Errorf("average confidence failed: %w", err)
	}
	return avg, nil
}

// Stats aggregates the dashboard view for one session.
func (r *ResultRepository) Stats(session *model.AnalysisSession) (*model.SessionStats, error) {
	stats := &model.SessionStats{
		SessionID:         session.ID,
		Filename:          session.Filename,
		CreatedAt:         session.CreatedAt,
		ClassDistribution: map[int]int64{0: 0, 1: 0, 2: 0},
	}

	if err := r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ?", session.ID).
		Count(&stats.TotalTexts).Error; err != nil {
		return nil, fmt.Errorf("count session rows failed: %w", err)
	}

	if err := r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ? AND pred_label IS NOT NULL", session.ID).
		Count(&stats.AnalyzedTexts).Error; err != nil {
		return nil, fmt.Errorf("count analyzed rows failed: %w", err)
	}

	var conf struct {
		Avg *float64
		Min *float64
		Max *float64
	}
	err := r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ? AND confidence IS NOT NULL", session.ID).
		Select("AVG(confidence) AS avg, MIN(confidence) AS min, MAX(confidence) AS max").
		Scan(&conf).Error
	if err != nil {
		return nil, fmt.Errorf("confidence stats failed: %w", err)
	}
	stats.AvgConfidence = conf.Avg
	stats.MinConfidence = conf.Min
	stats.MaxConfidence = conf.Max

	type labelCount struct {
		Label int
		Count int64
	}
	var labelCounts []labelCount
	err = r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ? AND pred_label IS NOT NULL", session.ID).
		Select("pred_label AS label, COUNT(id) AS count").
		Group("pred_label").
		Scan(&labelCounts).Error
	if err != nil {
		return nil, fmt.Errorf("class distribution failed: %w", err)
	}
	for _, lc := range labelCounts {
		stats.ClassDistribution[lc.Label] = lc.Count
	}

	type sourceCount struct {
		Source string
		Count  int64
	}
	var sourceCounts []sourceCount
	err = r.db.Model(&model.TextAnalysis{}).
		Where("session_id = ? AND source IS NOT NULL", session.ID).
		Select("source, COUNT(id) AS count").
		Group("source").
		Scan(&sourceCounts).Error
	if err != nil {
		return nil, fmt.Errorf("source distribution failed: %w", err)
	}
	if len(sourceCounts) > 0 {
		stats.SourceDistribution = make(map[string]int64, len(sourceCounts))
		for _, sc := range sourceCounts {
			stats.SourceDistribution[sc.Source] = sc.Count
		}
	}

	return stats, nil
}
