package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fieldtrial/domain/core"
	"fieldtrial/internal/logging"

	"golang.org/x/sync/semaphore"
)

// StudyRunner computes the statistics of one study
type StudyRunner interface {
	Run(ctx context.Context, studyID core.ID) (*StatisticsResult, error)
}

// BatchStatistics runs statistics over many studies with bounded concurrency. Duplicate
// study ids are run once.
type BatchStatistics struct {
	runner StudyRunner
	sem    *semaphore.Weighted
	logger *logging.Logger
}

// BatchItem is the outcome for one study
type BatchItem struct {
	StudyID core.ID           `json:"study_id"`
	Result  *StatisticsResult `json:"result,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// BatchResult is the outcome of a batch, in input order
type BatchResult struct {
	Status  core.OperationStatus `json:"status"`
	Items   []BatchItem          `json:"items"`
	Elapsed time.Duration        `json:"elapsed"`
}

// NewBatchStatistics creates a batch runner allowing concurrency runs at once
func NewBatchStatistics(runner StudyRunner, concurrency int, logger *logging.Logger) *BatchStatistics {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &BatchStatistics{
		runner: runner,
		sem:    semaphore.NewWeighted(int64(concurrency)),
		logger: logger,
	}
}

// Run computes every study. A study counts as succeeded only when its own run fully
// succeeded.
func (b *BatchStatistics) Run(ctx context.Context, studyIDs []core.ID) *BatchResult {
	start := time.Now()
	ids := dedupe(studyIDs)
	items := make([]BatchItem, len(ids))

	var wg sync.WaitGroup
	for i, id := range ids {
		items[i].StudyID = id
		if err := ctx.Err(); err != nil {
			items[i].Error = fmt.Sprintf("not started: %v", err)
			continue
		}
		if err := b.sem.Acquire(ctx, 1); err != nil {
			items[i].Error = fmt.Sprintf("not started: %v", err)
			continue
		}
		wg.Add(1)
		go func(item *BatchItem) {
			defer wg.Done()
			defer b.sem.Release(1)
			result, err := b.runner.Run(ctx, item.StudyID)
			item.Result = result
			if err != nil {
				item.Error = err.Error()
				b.logger.Warn("study statistics failed", "study_id", item.StudyID.String(), "error", err)
			}
		}(&items[i])
	}
	wg.Wait()

	succeeded, failed := 0, 0
	for _, item := range items {
		if item.Error == "" && item.Result != nil && item.Result.Status == core.StatusSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	out := &BatchResult{
		Status:  core.StatusFromTally(succeeded, failed),
		Items:   items,
		Elapsed: time.Since(start),
	}
	b.logger.Info("batch statistics finished", "studies", len(ids), "succeeded", succeeded, "failed", failed)
	return out
}

func dedupe(ids []core.ID) []core.ID {
	seen := make(map[core.ID]bool, len(ids))
	out := make([]core.ID, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
