// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/jaycherian/fencing-judge/internal/core/cor"
)

var (
	// ErrRunnerClosed is returned by Submit after Shutdown was called.
	ErrRunnerClosed = errors.New("background runner is shut down")
	// ErrQueueFull is returned by Submit when every queue slot is taken. Submit never blocks.
	ErrQueueFull = errors.New("background queue is full")
)

// Job is a unit of background work. Errors are logged, never returned to
// the submitter.
type Job func(ctx context.Context) error

type queuedJob struct {
	ctx  context.Context
	name string
	run  Job
}

// BackgroundRunner executes jobs on a fixed number of workers.
//
// Jobs are fire and forget: the submitter only learns whether the job was
// queued. Each job's outcome is logged and counted on the
// background.jobs.completed and background.jobs.failed counters. A job that
// panics is recovered and counted as failed, so one bad job cannot take a
// worker down.
type BackgroundRunner struct {
	jobs      chan *queuedJob
	wg        sync.WaitGroup
	mu        sync.RWMutex
	closed    bool
	completed metric.Int64Counter
	failed    metric.Int64Counter
}

// NewBackgroundRunner starts the workers and returns the runner.
//
// Inputs:
//   - workers: Number of worker goroutines; values below 1 are raised to 1.
//   - queueSize: Number of jobs that may wait for a worker; negative values are treated as 0.
//
// Outputs:
//   - *BackgroundRunner: A running pool. Call Shutdown to drain it.
func NewBackgroundRunner(workers int, queueSize int) *BackgroundRunner {
	workers = max(workers, 1)
	meter := otel.Meter(cor.MeterName)
	r := &BackgroundRunner{jobs: make(chan *queuedJob, max(queueSize, 0))}
	r.completed, _ = meter.Int64Counter("background.jobs.completed")
	r.failed, _ = meter.Int64Counter("background.jobs.failed")

	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
	return r
}

func (r *BackgroundRunner) worker(id int) {
	defer r.wg.Done()
	for job := range r.jobs {
		slog.DebugContext(job.ctx, "background job started", "worker", id, "job", job.name)
		if err := r.execute(job); err != nil {
			r.failed.Add(job.ctx, 1)
			slog.ErrorContext(job.ctx, "background job failed", "worker", id, "job", job.name, "error", err)
			continue
		}
		r.completed.Add(job.ctx, 1)
		slog.DebugContext(job.ctx, "background job finished", "worker", id, "job", job.name)
	}
}

func (r *BackgroundRunner) execute(job *queuedJob) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return job.run(job.ctx)
}

// Submit queues run without waiting for it. The job keeps ctx's values but
// not its cancellation, so it outlives the request that submitted it.
func (r *BackgroundRunner) Submit(ctx context.Context, name string, run Job) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return ErrRunnerClosed
	}
	select {
	case r.jobs <- &queuedJob{ctx: context.WithoutCancel(ctx), name: name, run: run}:
		return nil
	default:
		return fmt.Errorf("job %s: %w", name, ErrQueueFull)
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to be done.
func (r *BackgroundRunner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.jobs)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ChainJob adapts a chain run to a Job. The chain receives a fresh context
// holding inputs, and the job fails with the chain's joined errors.
func ChainJob(chain cor.Command, inputs map[string]interface{}) Job {
	return func(ctx context.Context) error {
		chCtx := cor.NewContext(ctx, nil)
		for k, v := range inputs {
			chCtx.Add(k, v)
		}
		if !chain.IsExecutable(chCtx) {
			return fmt.Errorf("%s is not executable", chain.GetName())
		}
		chain.Execute(chCtx)
		return chCtx.Err()
	}
}
