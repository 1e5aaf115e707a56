package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"sentigo/internal/model"
)

type SessionRepository struct {
	db *gorm.DB
}

func NewSessionRepository(db *gorm.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(session *model.AnalysisSession) error {
	if err := r.db.Create(session).Error; err != nil {
		return fmt.Errorf("create analysis session failed: %w", err)
	}
	return nil
}

// CreateWithRows persists a session together with its text rows in one
// transaction. A failure on either insert leaves no trace of the upload.
// Row SessionID values are filled in from the created session.
func (r *SessionRepository) CreateWithRows(session *model.AnalysisSession, rows []model.TextAnalysis) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create analysis session failed: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].SessionID = session.ID
		}
		if err := tx.CreateInBatches(rows, 500).Error; err != nil {
			return fmt.Errorf("bulk create text analyses failed: %w", err)
		}
		return nil
	})
}

// GetByID returns nil without error when the session does not exist.
func (r *SessionRepository) GetByID(sessionID uint) (*model.AnalysisSession, error) {
	var session model.AnalysisSession
	if err := r.db.First(&session, sessionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get analysis session failed: %w", err)
	}
	return &session, nil
}

func (r *SessionRepository) List(limit, offset int) ([]model.AnalysisSession, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	var total int64
	if err := r.db.Model(&model.AnalysisSession{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count analysis sessions failed: %w", err)
	}

	var sessions []model.AnalysisSession
	if err := r.db.Order("created_at DESC").Limit(limit).Offset(offset).Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("list analysis sessions failed: %w", err)
	}
	return sessions, total, nil
}

// Delete removes the session and, via the FK cascade, its text rows.
func (r *SessionRepository) Delete(sessionID uint) error {
	// Delete rows explicitly as well: sqlite test databases do not always
	// enforce the FK cascade.
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&model.TextAnalysis{}).Error; err != nil {
			return fmt.Errorf("delete session rows failed: %w", err)
		}
		if err := tx.Delete(&model.AnalysisSession{}, sessionID).Error; err != nil {
			return fmt.Errorf("delete analysis session failed: %w", err)
		}
		return nil
	})
}
