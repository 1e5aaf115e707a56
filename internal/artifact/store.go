// Package artifact persists prediction exports and validation reports in
// object storage. Artifacts are write-once and purged by age; relational
// state stays in mysql.
package artifact

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"sentigo/internal/metrics"
	"sentigo/internal/platform/objectstore"
)

const (
	predictionPrefix = "predictions/"
	validationPrefix = "validations/"
)

// ObjectStore is the slice of the object-storage client the store needs.
type ObjectStore interface {
	Put(ctx context.Context, name string, data []byte, contentType string) error
	Get(ctx context.Context, name string) ([]byte, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]objectstore.ObjectInfo, error)
}

// ValidationReport is the persisted JSON shape of one validation run.
type ValidationReport struct {
	MacroF1      float64                `json:"macro_f1"`
	ClassMetrics []metrics.ClassMetrics `json:"class_metrics"`
	RowsCount    int                    `json:"rows_count"`
	SkippedRows  []int                  `json:"skipped_rows"`
	CreatedAt    time.Time              `json:"created_at"`
}

// PredictionArtifact describes one stored prediction CSV.
type PredictionArtifact struct {
	ID        string    `json:"id"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

// ValidationArtifact describes one stored validation report.
type ValidationArtifact struct {
	ID        string    `json:"id"`
	SizeBytes int64     `json:"size_bytes"`
	CreatedAt time.Time `json:"created_at"`
}

type Store struct {
	objects ObjectStore
}

func NewStore(objects ObjectStore) *Store {
	return &Store{objects: objects}
}

// SavePredictionCSV stores an exported prediction CSV under the given run id.
func (s *Store) SavePredictionCSV(ctx context.Context, id string, csvData []byte) error {
	if err := s.objects.Put(ctx, predictionPrefix+id+".csv", csvData, "text/csv"); err != nil {
		return fmt.Errorf("save prediction artifact %s failed: %w", id, err)
	}
	return nil
}

func (s *Store) GetPredictionCSV(ctx context.Context, id string) ([]byte, error) {
	data, err := s.objects.Get(ctx, predictionPrefix+id+".csv")
	if err != nil {
		return nil, fmt.Errorf("get prediction artifact %s failed: %w", id, err)
	}
	return data, nil
}

// SaveValidation stores a validation report and returns its generated id.
func (s *Store) SaveValidation(ctx context.Context, report ValidationReport) (string, error) {
	id := uuid.NewString()
	data, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("encode validation report failed: %w", err)
	}
	if err := s.objects.Put(ctx, validationPrefix+id+".json", data, "application/json"); err != nil {
		return "", fmt.Errorf("save validation artifact %s failed: %w", id, err)
	}
	return id, nil
}

func (s *Store) GetValidation(ctx context.Context, id string) (*ValidationReport, error) {
	data, err := s.objects.Get(ctx, validationPrefix+id+".json")
	if err != nil {
		return nil, fmt.Errorf("get validation artifact %s failed: %w", id, err)
	}
	var report ValidationReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decode validation artifact %s failed: %w", id, err)
	}
	return &report, nil
}

// ListPredictions returns stored prediction artifacts, newest first.
func (s *Store) ListPredictions(ctx context.Context) ([]PredictionArtifact, error) {
	infos, err := s.objects.List(ctx, predictionPrefix)
	if err != nil {
		return nil, fmt.Errorf("list prediction artifacts failed: %w", err)
	}
	artifacts := make([]PredictionArtifact, 0, len(infos))
	for _, info := range infos {
		id, ok := artifactID(info.Name, predictionPrefix, ".csv")
		if !ok {
			continue
		}
		artifacts = append(artifacts, PredictionArtifact{
			ID:        id,
			SizeBytes: info.Size,
			CreatedAt: info.LastModified,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// ListValidations returns stored validation artifacts, newest first.
func (s *Store) ListValidations(ctx context.Context) ([]ValidationArtifact, error) {
	infos, err := s.objects.List(ctx, validationPrefix)
	if err != nil {
		return nil, fmt.Errorf("list validation artifacts failed: %w", err)
	}
	artifacts := make([]ValidationArtifact, 0, len(infos))
	for _, info := range infos {
		id, ok := artifactID(info.Name, validationPrefix, ".json")
		if !ok {
			continue
		}
		artifacts = append(artifacts, ValidationArtifact{
			ID:        id,
			SizeBytes: info.Size,
			CreatedAt: info.LastModified,
		})
	}
	sort.Slice(artifacts, func(i, j int) bool {
		return artifacts[i].CreatedAt.After(artifacts[j].CreatedAt)
	})
	return artifacts, nil
}

// CleanupOlderThan removes artifacts whose last modification is older than
// maxAge. Returns the number of removed objects. Removal errors on single
// objects abort the sweep so the next run retries them.
func (s *Store) CleanupOlderThan(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, prefix := range []string{predictionPrefix, validationPrefix} {
		infos, err := s.objects.List(ctx, prefix)
		if err != nil {
			return removed, fmt.Errorf("cleanup list %q failed: %w", prefix, err)
		}
		for _, info := range infos {
			if !info.LastModified.Before(cutoff) {
				continue
			}
			if err := s.objects.Remove(ctx, info.Name); err != nil {
				return removed, fmt.Errorf("cleanup remove %q failed: %w", info.Name, err)
			}
			removed++
		}
	}
	return removed, nil
}

func artifactID(name, prefix, ext string) (string, bool) {
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ext) {
		return "", false
	}
	id := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ext)
	if id == "" {
		return "", false
	}
	return id, true
}
