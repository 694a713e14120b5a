package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/fyrsmithlabs/extractd/internal/fields"
	"github.com/fyrsmithlabs/extractd/internal/strategy"
)

// Config configures the decomposer.
type Config struct {
	// MaxConcurrent caps simultaneous in-flight tasks. This is
	// backpressure against downstream rate limits (default: 3).
	MaxConcurrent int

	// TaskTimeout bounds each strategy call. A timed-out task fails
	// alone; the batch continues (default: 90s).
	TaskTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 3,
		TaskTimeout:   90 * time.Second,
	}
}

// Decomposer runs task batches against a strategy.
type Decomposer struct {
	cfg    Config
	logger *zap.Logger
}

// NewDecomposer creates a decomposer.
func NewDecomposer(cfg Config, logger *zap.Logger) *Decomposer {
	def := DefaultConfig()
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = def.TaskTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{cfg: cfg, logger: logger}
}

// ParseByTasks splits the extraction into per-information-type tasks and
// runs them concurrently against st, bounded by MaxConcurrent. onDone, if
// non-nil, is invoked once per finished task (completed or failed) for
// progress tracking; invocations may arrive in any order.
func (d *Decomposer) ParseByTasks(
	ctx context.Context,
	st strategy.Strategy,
	input strategy.Input,
	typeHint string,
	filter []fields.InformationType,
	onDone func(Task),
) *ParseResult {
	started := time.Now()
	types := TaskTypes(typeHint, filter)

	taskList := make([]Task, len(types))
	for i, t := range types {
		taskList[i] = Task{
			ID:     uuid.New().String(),
			Type:   t,
			Status: StatusPending,
		}
	}

	sem := semaphore.NewWeighted(int64(d.cfg.MaxConcurrent))
	var wg sync.WaitGroup

	for i := range taskList {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled while waiting: remaining tasks fail fast.
			taskList[i].Status = StatusFailed
			taskList[i].Error = err.Error()
			if onDone != nil {
				onDone(taskList[i])
			}
			continue
		}

		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			defer sem.Release(1)
			d.runTask(ctx, st, input, task)
			if onDone != nil {
				onDone(*task)
			}
		}(&taskList[i])
	}

	wg.Wait()

	return d.aggregate(taskList, time.Since(started))
}

// runTask executes one task. Failures are converted into structured
// records on the task; they never propagate.
func (d *Decomposer) runTask(ctx context.Context, st strategy.Strategy, input strategy.Input, task *Task) {
	task.Status = StatusProcessing
	task.StartTime = time.Now()

	defs := fields.FieldsForType(input.Fields, task.Type)
	names := make([]string, len(defs))
	for i, def := range defs {
		names[i] = def.Name
	}

	res, err := st.Parse(ctx, input, strategy.Options{
		TargetFields: names,
		Timeout:      d.cfg.TaskTimeout,
	})

	task.EndTime = time.Now()
	task.ProcessingTime = task.EndTime.Sub(task.StartTime)

	if err != nil {
		task.Status = StatusFailed
		task.Error = err.Error()
		d.logger.Warn("task failed",
			zap.String("task_id", task.ID),
			zap.String("information_type", string(task.Type)),
			zap.String("strategy", st.ID()),
			zap.Error(err),
		)
		return
	}

	task.Status = StatusCompleted
	task.Data = res.Fields
	task.TokensUsed = res.TokensUsed

	d.logger.Debug("task completed",
		zap.String("task_id", task.ID),
		zap.String("information_type", string(task.Type)),
		zap.Int("fields", len(res.Fields)),
		zap.Duration("duration", task.ProcessingTime),
	)
}

// aggregate merges task outputs and computes the batch summary.
func (d *Decomposer) aggregate(taskList []Task, elapsed time.Duration) *ParseResult {
	result := &ParseResult{
		Data:   make(map[fields.InformationType]fields.Set),
		Merged: make(fields.Set),
		Tasks:  taskList,
		Summary: Summary{
			TotalTasks: len(taskList),
			TotalTime:  elapsed,
		},
	}

	for _, task := range taskList {
		result.Summary.TotalTokensUsed += task.TokensUsed
		switch task.Status {
		case StatusCompleted:
			result.Summary.SuccessfulTasks++
			if len(task.Data) > 0 {
				result.Data[task.Type] = task.Data
				result.Merged.Merge(task.Data)
			}
		case StatusFailed:
			result.Summary.FailedTasks++
		}
	}

	return result
}
