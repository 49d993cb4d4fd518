/*
Copyright 2025 Sello Labs Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package sello

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/internal/apierror"
	"github.com/sellolabs/sello/model"
)

// Disposition tells the queue what to do with a job after a run. A requeue
// keeps the job's issuance in flight and schedules the job again after
// Delay; otherwise the job is concluded and its in-flight claim released.
type Disposition struct {
	Requeue bool
	Delay   time.Duration
}

// JobRunner executes a single job. Runners never touch the queue's internal
// state directly; follow-up work (a monitoring hand-off, a retry) is
// expressed through the returned Disposition or a new enqueue.
type JobRunner interface {
	RunAnchor(ctx context.Context, job *model.AnchorJob) (Disposition, error)
	RunMonitor(ctx context.Context, job *model.MonitorJob) (Disposition, error)
}

type delayedJob struct {
	job       model.Job
	notBefore time.Time
}

// QueueEngine is the in-process job queue driving the anchor lifecycle.
// Jobs run strictly one at a time: a single drain loop owns execution and
// every other entry point only appends and signals. Delayed jobs live in a
// separate holding list and are promoted to the tail of the ready queue
// once due.
type QueueEngine struct {
	mu       sync.Mutex
	jobs     []model.Job
	delayed  []delayedJob
	inflight map[string]int
	draining bool

	clock  Clock
	runner JobRunner

	interJobPause time.Duration
	drainInterval time.Duration

	started bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

func NewQueueEngine(configuration *config.Configuration, clock Clock, runner JobRunner) *QueueEngine {
	return &QueueEngine{
		inflight:      make(map[string]int),
		clock:         clock,
		runner:        runner,
		interJobPause: time.Duration(configuration.Queue.InterJobPauseSec) * time.Second,
		drainInterval: time.Duration(configuration.Queue.DrainIntervalSec) * time.Second,
	}
}

// AddAnchorJob enqueues a fresh submission for an issuance. At most one job
// chain per issuance may be in flight; a second enqueue while the first has
// not concluded is rejected with a conflict so operators cannot double-anchor
// a record by resending it twice.
func (q *QueueEngine) AddAnchorJob(_ context.Context, job *model.AnchorJob) error {
	q.mu.Lock()
	if q.inflight[job.IssuanceID] > 0 {
		q.mu.Unlock()
		return apierror.NewAPIError(apierror.ErrConflict, fmt.Sprintf("Issuance '%s' already has a job in flight", job.IssuanceID), nil)
	}
	q.inflight[job.IssuanceID]++
	q.jobs = append(q.jobs, job)
	length := len(q.jobs)
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "issuance_id": job.IssuanceID, "queue_length": length}).Info("anchor job enqueued")
	q.kick()
	return nil
}

// AddMonitoringJob enqueues a confirmation watch. Monitoring jobs are only
// created from inside a running job (the timeout hand-off) or by recovery
// code that has already checked the record, so no conflict check applies;
// the issuance's in-flight claim carries over to the monitor.
func (q *QueueEngine) AddMonitoringJob(_ context.Context, job *model.MonitorJob) {
	q.mu.Lock()
	q.inflight[job.IssuanceID]++
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()

	logrus.WithFields(logrus.Fields{"job_id": job.JobID, "issuance_id": job.IssuanceID, "tx_hash": job.TransactionHash}).Info("monitoring job enqueued")
	q.kick()
}

// Start launches the periodic drain trigger. The interval exists to pick up
// delayed jobs whose due time arrives while the queue is otherwise idle.
func (q *QueueEngine) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.stopCh = make(chan struct{})
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		ticker := time.NewTicker(q.drainInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stopCh:
				return
			case <-ticker.C:
				q.Drain(ctx)
			}
		}
	}()

	logrus.Info("anchor queue started")
}

func (q *QueueEngine) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.started = false
	close(q.stopCh)
	q.mu.Unlock()

	q.wg.Wait()
	logrus.Info("anchor queue stopped")
}

// kick runs a drain in the background when the queue is live. Enqueues made
// before Start (or in tests) rely on the caller driving Drain directly.
func (q *QueueEngine) kick() {
	q.mu.Lock()
	started := q.started
	q.mu.Unlock()
	if started {
		go q.Drain(context.Background())
	}
}

// Drain processes ready jobs one at a time until the queue is empty. Only
// one drain runs at a time; concurrent calls return immediately and the
// active loop picks up anything they enqueued.
func (q *QueueEngine) Drain(ctx context.Context) {
	q.mu.Lock()
	if q.draining {
		q.mu.Unlock()
		return
	}
	q.draining = true
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}()

	for {
		if ctx.Err() != nil {
			return
		}
		job := q.next()
		if job == nil {
			return
		}

		q.dispatch(ctx, job)

		if q.interJobPause > 0 {
			q.clock.Sleep(ctx, q.interJobPause)
		}
	}
}

// next promotes due delayed jobs to the tail of the ready queue, then pops
// the head. Returns nil when nothing is ready.
func (q *QueueEngine) next() model.Job {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.clock.Now()
	var waiting []delayedJob
	for _, d := range q.delayed {
		if !d.notBefore.After(now) {
			q.jobs = append(q.jobs, d.job)
		} else {
			waiting = append(waiting, d)
		}
	}
	q.delayed = waiting

	if len(q.jobs) == 0 {
		return nil
	}
	job := q.jobs[0]
	q.jobs = q.jobs[1:]
	return job
}

func (q *QueueEngine) dispatch(ctx context.Context, job model.Job) {
	var disposition Disposition
	var err error

	func() {
		defer func() {
			if r := recover(); r != nil {
				logrus.WithFields(logrus.Fields{"job_id": job.ID(), "issuance_id": job.Issuance()}).Errorf("job panicked: %v", r)
				disposition = Disposition{}
				err = nil
			}
		}()

		switch j := job.(type) {
		case *model.AnchorJob:
			disposition, err = q.runner.RunAnchor(ctx, j)
		case *model.MonitorJob:
			disposition, err = q.runner.RunMonitor(ctx, j)
		default:
			logrus.Errorf("unknown job kind %q, dropping job %s", job.Kind(), job.ID())
		}
	}()

	if err != nil {
		// Runners absorb domain failures into record status; an error
		// here is unexpected and the job is concluded rather than
		// retried blindly.
		logrus.WithFields(logrus.Fields{"job_id": job.ID(), "issuance_id": job.Issuance()}).Errorf("job failed: %v", err)
	}

	if disposition.Requeue {
		q.mu.Lock()
		q.delayed = append(q.delayed, delayedJob{job: job, notBefore: q.clock.Now().Add(disposition.Delay)})
		q.mu.Unlock()
		return
	}

	q.conclude(job.Issuance())
}

// conclude releases one in-flight claim for the issuance. The claim count
// survives the anchor-to-monitor hand-off because the monitor enqueue takes
// its own claim before the anchor job concludes.
func (q *QueueEngine) conclude(issuanceID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.inflight[issuanceID]--
	if q.inflight[issuanceID] <= 0 {
		delete(q.inflight, issuanceID)
	}
}

// InFlight reports whether the issuance currently holds a job claim.
func (q *QueueEngine) InFlight(issuanceID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.inflight[issuanceID] > 0
}

// JobSummary describes one queued job for operator inspection. NotBefore is
// zero for jobs that are already ready to run.
type JobSummary struct {
	JobID      string    `json:"job_id"`
	Kind       string    `json:"kind"`
	IssuanceID string    `json:"issuance_id"`
	Attempts   int       `json:"attempts"`
	NotBefore  time.Time `json:"not_before,omitempty"`
}

// QueueStats is a point-in-time snapshot of queue state. Kind counts and job
// summaries cover both the ready queue and the delayed holding list.
type QueueStats struct {
	QueueLength    int          `json:"queue_length"`
	DelayedJobs    int          `json:"delayed_jobs"`
	NormalJobs     int          `json:"normal_jobs"`
	MonitoringJobs int          `json:"monitoring_jobs"`
	InFlight       int          `json:"in_flight"`
	Draining       bool         `json:"draining"`
	Started        bool         `json:"started"`
	Jobs           []JobSummary `json:"jobs"`
}

func (q *QueueEngine) Stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	stats := QueueStats{
		QueueLength: len(q.jobs),
		DelayedJobs: len(q.delayed),
		InFlight:    len(q.inflight),
		Draining:    q.draining,
		Started:     q.started,
	}
	for _, job := range q.jobs {
		stats.tally(job, time.Time{})
	}
	for _, d := range q.delayed {
		stats.tally(d.job, d.notBefore)
	}
	return stats
}

func (s *QueueStats) tally(job model.Job, notBefore time.Time) {
	summary := JobSummary{
		JobID:      job.ID(),
		Kind:       job.Kind(),
		IssuanceID: job.Issuance(),
		NotBefore:  notBefore,
	}
	switch j := job.(type) {
	case *model.AnchorJob:
		s.NormalJobs++
		summary.Attempts = j.Attempts
	case *model.MonitorJob:
		s.MonitoringJobs++
		summary.Attempts = j.CheckAttempts
	}
	s.Jobs = append(s.Jobs, summary)
}
