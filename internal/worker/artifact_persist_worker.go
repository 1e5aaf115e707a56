package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"sentigo/internal/artifact"
	"sentigo/internal/csvio"
	"sentigo/internal/model"
	"sentigo/internal/repository"
)

// ArtifactPersistWorker consumes prediction-run events and writes the
// session's exported CSV to object storage, keeping artifact persistence
// off the request path.
type ArtifactPersistWorker struct {
	conn       *amqp.Connection
	resultRepo *repository.ResultRepository
	artifacts  *artifact.Store
	queueName  string

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewArtifactPersistWorker(conn *amqp.Connection, resultRepo *repository.ResultRepository, artifacts *artifact.Store, queueName string) *ArtifactPersistWorker {
	return &ArtifactPersistWorker{
		conn:       conn,
		resultRepo: resultRepo,
		artifacts:  artifacts,
		queueName:  queueName,
	}
}

func (w *ArtifactPersistWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	_, err = ch.QueueDeclare(
		w.queueName,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("declare worker queue failed: %w", err)
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()

		for {
			select {
			case <-workerCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}

				var event model.PredictionRunEvent
				if err := json.Unmarshal(d.Body, &event); err != nil {
					log.Printf("worker decode prediction event failed: %v", err)
					_ = d.Nack(false, false)
					continue
				}

				if err := w.persist(workerCtx, event); err != nil {
					log.Printf("worker persist artifact for session %d failed: %v", event.SessionID, err)
					_ = d.Nack(false, false)
					continue
				}

				_ = d.Ack(false)
			}
		}
	}()

	return nil
}

func (w *ArtifactPersistWorker) persist(ctx context.Context, event model.PredictionRunEvent) error {
	rows, err := w.resultRepo.ListBySession(event.SessionID)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("session %d has no rows", event.SessionID)
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

	csvData, err := csvio.ExportCSV(records)
	if err != nil {
		return err
	}
	return w.artifacts.SavePredictionCSV(ctx, event.PredictionID, []byte(csvData))
}

func (w *ArtifactPersistWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
