package simulate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"stableScope/internal/model"
	"stableScope/internal/stableswap"
)

// ResultSink receives simulation results in batches.
type ResultSink interface {
	PutResults(results []model.OperationResult) error
}

// RunConfig controls a simulation run.
type RunConfig struct {
	Name       string
	BatchSize  int
	StateStore StateStore
}

// Summary counts what a run did. Skipped lines were already processed by an
// earlier run.
type Summary struct {
	Total   uint64
	Applied uint64
	Failed  uint64
	Skipped uint64
}

// Runner streams operations from JSONL through a Simulator.
type Runner struct {
	cfg    RunConfig
	sim    *Simulator
	sink   ResultSink
	logger *zap.Logger
}

func NewRunner(cfg RunConfig, sim *Simulator, sink ResultSink, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	return &Runner{cfg: cfg, sim: sim, sink: sink, logger: logger}
}

// Run applies every operation line of in. Results are flushed to the sink
// and the state is checkpointed every BatchSize operations; a run that finds
// a saved state restores the pool from it and skips the lines it covers.
// Failed operations are recorded and do not stop the run.
func (r *Runner) Run(ctx context.Context, in io.Reader) (Summary, error) {
	if r.sim == nil {
		return Summary{}, fmt.Errorf("simulator is nil")
	}
	if r.sink == nil {
		return Summary{}, fmt.Errorf("result sink is nil")
	}

	var processed uint64
	if r.cfg.StateStore != nil {
		state, ok, err := r.cfg.StateStore.Load(ctx)
		if err != nil {
			return Summary{}, fmt.Errorf("load state: %w", err)
		}
		if ok {
			if err := r.sim.Restore(state); err != nil {
				return Summary{}, fmt.Errorf("restore state: %w", err)
			}
			processed = state.Processed
			r.logger.Info("simulation resume",
				zap.String("name", r.cfg.Name),
				zap.Uint64("processed", processed),
			)
		}
	}

	scanner := bufio.NewScanner(in)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	var summary Summary
	var seq uint64
	batch := make([]model.OperationResult, 0, r.cfg.BatchSize)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		seq++
		summary.Total++
		if seq <= processed {
			summary.Skipped++
			continue
		}
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		res := r.apply(line)
		res.Seq = seq
		if res.Error != "" {
			summary.Failed++
		} else {
			summary.Applied++
		}
		batch = append(batch, res)

		if len(batch) >= r.cfg.BatchSize {
			if err := r.flush(ctx, batch, seq); err != nil {
				return summary, err
			}
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scan input: %w", err)
	}

	if len(batch) > 0 {
		if err := r.flush(ctx, batch, seq); err != nil {
			return summary, err
		}
	}

	r.logger.Info("simulation complete",
		zap.String("name", r.cfg.Name),
		zap.Uint64("total", summary.Total),
		zap.Uint64("applied", summary.Applied),
		zap.Uint64("failed", summary.Failed),
		zap.Uint64("skipped", summary.Skipped),
	)
	return summary, nil
}

func (r *Runner) apply(line []byte) model.OperationResult {
	var op model.Operation
	if err := json.Unmarshal(line, &op); err != nil {
		return model.OperationResult{Error: fmt.Sprintf("parse operation: %v", err)}
	}

	res, err := r.sim.Apply(op)
	if err != nil {
		level := r.logger.Debug
		if errors.Is(err, stableswap.ErrNotConverged) {
			level = r.logger.Warn
		}
		level("operation failed", zap.String("op", op.Op), zap.Error(err))
	}
	return res
}

func (r *Runner) flush(ctx context.Context, batch []model.OperationResult, processed uint64) error {
	if err := r.sink.PutResults(batch); err != nil {
		return fmt.Errorf("write results: %w", err)
	}
	if r.cfg.StateStore == nil {
		return nil
	}
	if err := r.cfg.StateStore.Save(ctx, r.sim.State(r.cfg.Name, processed)); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	r.logger.Debug("simulation checkpoint",
		zap.String("name", r.cfg.Name),
		zap.Uint64("processed", processed),
	)
	return nil
}
