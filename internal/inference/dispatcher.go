package inference

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Sizing tiers balance per-request overhead against single-request latency
// and the model service's memory limits: small batches go out as one cheap
// synchronous call, large corpora are chunked and pipelined.
type tier struct {
	maxTexts    int
	chunkSize   int
	concurrency int64
}

var sizingTiers = []tier{
	{maxTexts: 200, chunkSize: 0, concurrency: 1}, // chunkSize 0: whole batch in one call
	{maxTexts: 1000, chunkSize: 500, concurrency: 2},
	{maxTexts: 10000, chunkSize: 2000, concurrency: 5},
	{maxTexts: 50000, chunkSize: 5000, concurrency: 8},
	{maxTexts: int(^uint(0) >> 1), chunkSize: 10000, concurrency: 10},
}

const (
	singleCallTimeout = 30 * time.Minute

	chunkTimeoutFloor   = 300 * time.Second
	chunkTimeoutPerText = 500 * time.Millisecond

	dispatchTimeoutFloor   = 2 * time.Hour
	dispatchTimeoutPerText = 300 * time.Millisecond
)

// DispatchError identifies which chunk of a batch dispatch failed.
type DispatchError struct {
	Chunk  int
	Chunks int
	Err    error
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("chunk %d/%d failed: %v", e.Chunk, e.Chunks, e.Err)
}

func (e *DispatchError) Unwrap() error { return e.Err }

func sizingFor(n int) tier {
	for _, t := range sizingTiers {
		if n <= t.maxTexts {
			return t
		}
	}
	return sizingTiers[len(sizingTiers)-1]
}

func chunkTimeout(n int) time.Duration {
	d := time.Duration(n) * chunkTimeoutPerText
	if d < chunkTimeoutFloor {
		return chunkTimeoutFloor
	}
	return d
}

func dispatchTimeout(n int) time.Duration {
	d := time.Duration(n) * dispatchTimeoutPerText
	if d < dispatchTimeoutFloor {
		return dispatchTimeoutFloor
	}
	return d
}

// ChunkCount reports how many chunks a batch of n texts dispatches as.
func ChunkCount(n int) int {
	if n == 0 {
		return 0
	}
	t := sizingFor(n)
	if t.chunkSize == 0 || n <= t.chunkSize {
		return 1
	}
	return (n + t.chunkSize - 1) / t.chunkSize
}

// Dispatch classifies texts through the model service and returns one
// prediction per input text, in input order. Chunk calls complete in
// arbitrary wall-clock order; ordering is restored by positional
// concatenation. Any chunk failure voids the whole dispatch: partial
// results would silently corrupt downstream metrics.
func (c *Client) Dispatch(ctx context.Context, texts []string) ([]Prediction, error) {
	n := len(texts)
	if n == 0 {
		return []Prediction{}, nil
	}

	t := sizingFor(n)

	// Small batches: one synchronous call, no scheduling overhead.
	if t.chunkSize == 0 || n <= t.chunkSize {
		results, err := c.predictChunk(ctx, texts, singleCallTimeout)
		if err != nil {
			return nil, &DispatchError{Chunk: 1, Chunks: 1, Err: err}
		}
		return results, nil
	}

	dispatchCtx, cancel := context.WithTimeout(ctx, dispatchTimeout(n))
	defer cancel()

	numChunks := (n + t.chunkSize - 1) / t.chunkSize
	chunkResults := make([][]Prediction, numChunks)

	// The semaphore is scoped to this dispatch call; it bounds in-flight
	// connections to the model service for this batch only.
	sem := semaphore.NewWeighted(t.concurrency)
	g, groupCtx := errgroup.WithContext(dispatchCtx)

	for i := 0; i < numChunks; i++ {
		start := i * t.chunkSize
		end := start + t.chunkSize
		if end > n {
			end = n
		}
		chunk := texts[start:end]
		idx := i

		g.Go(func() error {
			if err := sem.Acquire(groupCtx, 1); err != nil {
				return &DispatchError{Chunk: idx + 1, Chunks: numChunks, Err: err}
			}
			defer sem.Release(1)

			results, err := c.predictChunk(groupCtx, chunk, chunkTimeout(len(chunk)))
			if err != nil {
				return &DispatchError{Chunk: idx + 1, Chunks: numChunks, Err: err}
			}
			chunkResults[idx] = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]Prediction, 0, n)
	for _, results := range chunkResults {
		out = append(out, results...)
	}
	if len(out) != n {
		return nil, fmt.Errorf("dispatch produced %d results for %d texts", len(out), n)
	}
	return out, nil
}
