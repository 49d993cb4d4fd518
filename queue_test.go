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
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sellolabs/sello/config"
	"github.com/sellolabs/sello/database"
	"github.com/sellolabs/sello/internal/apierror"
	"github.com/sellolabs/sello/internal/chain"
	"github.com/sellolabs/sello/model"
)

// fakeClock is a manually driven time source. Sleep advances it instead of
// blocking, so confirmation waits and retry delays run instantly.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(_ context.Context, d time.Duration) {
	c.Advance(d)
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type mockChainClient struct {
	submit     func(ctx context.Context, params chain.MintParams) (string, error)
	getReceipt func(ctx context.Context, hash string) (*chain.Receipt, error)
}

func (m *mockChainClient) Submit(ctx context.Context, params chain.MintParams) (string, error) {
	return m.submit(ctx, params)
}

func (m *mockChainClient) GetReceipt(ctx context.Context, hash string) (*chain.Receipt, error) {
	return m.getReceipt(ctx, hash)
}

func newTestSello(clock Clock, chainClient chain.Client, ds database.IDataSource) *Sello {
	config.MockConfig(&config.Configuration{})
	conf, _ := config.Fetch()
	s := &Sello{chain: chainClient, datasource: ds, clock: clock}
	s.queue = NewQueueEngine(conf, clock, s)
	return s
}

// stubRunner lets queue tests script job outcomes without touching the
// anchoring logic.
type stubRunner struct {
	anchor  func(ctx context.Context, job *model.AnchorJob) (Disposition, error)
	monitor func(ctx context.Context, job *model.MonitorJob) (Disposition, error)
}

func (r *stubRunner) RunAnchor(ctx context.Context, job *model.AnchorJob) (Disposition, error) {
	if r.anchor == nil {
		return Disposition{}, nil
	}
	return r.anchor(ctx, job)
}

func (r *stubRunner) RunMonitor(ctx context.Context, job *model.MonitorJob) (Disposition, error) {
	if r.monitor == nil {
		return Disposition{}, nil
	}
	return r.monitor(ctx, job)
}

func newTestEngine(runner JobRunner) (*QueueEngine, *fakeClock) {
	config.MockConfig(&config.Configuration{})
	conf, _ := config.Fetch()
	clock := newFakeClock()
	return NewQueueEngine(conf, clock, runner), clock
}

func TestQueueProcessesJobsInOrder(t *testing.T) {
	var order []string
	runner := &stubRunner{
		anchor: func(_ context.Context, job *model.AnchorJob) (Disposition, error) {
			order = append(order, job.IssuanceID)
			return Disposition{}, nil
		},
	}
	engine, _ := newTestEngine(runner)

	ctx := context.Background()
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_1", "0xissuer", "Title 1", "ipfs://a")))
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_2", "0xissuer", "Title 2", "ipfs://b")))
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_3", "0xissuer", "Title 3", "ipfs://c")))

	engine.Drain(ctx)

	assert.Equal(t, []string{"isu_1", "isu_2", "isu_3"}, order)
	assert.Equal(t, 0, engine.Stats().QueueLength)
	assert.Equal(t, 0, engine.Stats().InFlight)
}

func TestQueueNeverRunsJobsConcurrently(t *testing.T) {
	var mu sync.Mutex
	active, maxActive := 0, 0
	runner := &stubRunner{
		anchor: func(_ context.Context, _ *model.AnchorJob) (Disposition, error) {
			mu.Lock()
			active++
			if active > maxActive {
				maxActive = active
			}
			mu.Unlock()
			time.Sleep(2 * time.Millisecond)
			mu.Lock()
			active--
			mu.Unlock()
			return Disposition{}, nil
		},
	}
	engine, _ := newTestEngine(runner)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob(model.GenerateUUIDWithSuffix("isu"), "0xissuer", "Title", "ipfs://x")))
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.Drain(ctx)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxActive)
	assert.Equal(t, 0, engine.Stats().QueueLength)
}

func TestQueueRejectsDuplicateWhileInFlight(t *testing.T) {
	runner := &stubRunner{}
	engine, _ := newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_dup", "0xissuer", "Title", "ipfs://x")))

	err := engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_dup", "0xissuer", "Title", "ipfs://x"))
	assert.Error(t, err)
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	engine.Drain(ctx)

	// Concluded; a fresh enqueue is fine now.
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_dup", "0xissuer", "Title", "ipfs://x")))
}

func TestQueueDelayedJobNotRunBeforeDue(t *testing.T) {
	runs := 0
	runner := &stubRunner{
		anchor: func(_ context.Context, _ *model.AnchorJob) (Disposition, error) {
			runs++
			if runs == 1 {
				return Disposition{Requeue: true, Delay: 5 * time.Second}, nil
			}
			return Disposition{}, nil
		},
	}
	engine, clock := newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_delay", "0xissuer", "Title", "ipfs://x")))

	engine.Drain(ctx)
	assert.Equal(t, 1, runs)
	assert.Equal(t, 1, engine.Stats().DelayedJobs)
	assert.Equal(t, 1, engine.Stats().InFlight)

	// Not due yet.
	engine.Drain(ctx)
	assert.Equal(t, 1, runs)

	clock.Advance(5 * time.Second)
	engine.Drain(ctx)
	assert.Equal(t, 2, runs)
	assert.Equal(t, 0, engine.Stats().DelayedJobs)
	assert.Equal(t, 0, engine.Stats().InFlight)
}

func TestQueueHandOffKeepsIssuanceInFlight(t *testing.T) {
	var engine *QueueEngine
	monitorRuns := 0
	runner := &stubRunner{}
	runner.anchor = func(ctx context.Context, job *model.AnchorJob) (Disposition, error) {
		engine.AddMonitoringJob(ctx, model.NewMonitorJob(job.IssuanceID, "0xhash", 20))
		return Disposition{}, nil
	}
	runner.monitor = func(_ context.Context, _ *model.MonitorJob) (Disposition, error) {
		monitorRuns++
		if monitorRuns == 1 {
			return Disposition{Requeue: true, Delay: 10 * time.Minute}, nil
		}
		return Disposition{}, nil
	}
	engine, clock := newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_hand", "0xissuer", "Title", "ipfs://x")))
	engine.Drain(ctx)

	// Anchor concluded but the monitor is parked in the delayed list, so the
	// issuance is still claimed.
	assert.Equal(t, 1, monitorRuns)
	err := engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_hand", "0xissuer", "Title", "ipfs://x"))
	assert.True(t, apierror.Is(err, apierror.ErrConflict))

	clock.Advance(10 * time.Minute)
	engine.Drain(ctx)
	assert.Equal(t, 2, monitorRuns)
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_hand", "0xissuer", "Title", "ipfs://x")))
}

func TestQueueDrainPicksUpJobsEnqueuedMidDrain(t *testing.T) {
	var engine *QueueEngine
	var order []string
	runner := &stubRunner{}
	runner.anchor = func(ctx context.Context, job *model.AnchorJob) (Disposition, error) {
		order = append(order, job.IssuanceID)
		if job.IssuanceID == "isu_first" {
			assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_second", "0xissuer", "Title", "ipfs://x")))
		}
		return Disposition{}, nil
	}
	engine, _ = newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_first", "0xissuer", "Title", "ipfs://x")))
	engine.Drain(ctx)

	assert.Equal(t, []string{"isu_first", "isu_second"}, order)
}

func TestQueueSurvivesPanickingJob(t *testing.T) {
	calls := 0
	runner := &stubRunner{
		anchor: func(_ context.Context, job *model.AnchorJob) (Disposition, error) {
			calls++
			if job.IssuanceID == "isu_bad" {
				panic("boom")
			}
			return Disposition{}, nil
		},
	}
	engine, _ := newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_bad", "0xissuer", "Title", "ipfs://x")))
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_good", "0xissuer", "Title", "ipfs://x")))

	engine.Drain(ctx)

	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, engine.Stats().QueueLength)
	assert.Equal(t, 0, engine.Stats().InFlight)
}

func TestQueueStats(t *testing.T) {
	runner := &stubRunner{
		anchor: func(_ context.Context, _ *model.AnchorJob) (Disposition, error) {
			return Disposition{Requeue: true, Delay: time.Minute}, nil
		},
		monitor: func(_ context.Context, _ *model.MonitorJob) (Disposition, error) {
			return Disposition{Requeue: true, Delay: 10 * time.Minute}, nil
		},
	}
	engine, _ := newTestEngine(runner)
	ctx := context.Background()

	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_a", "0xissuer", "Title", "ipfs://x")))
	assert.NoError(t, engine.AddAnchorJob(ctx, model.NewAnchorJob("isu_b", "0xissuer", "Title", "ipfs://x")))
	engine.AddMonitoringJob(ctx, model.NewMonitorJob("isu_c", "0xc", 20))

	stats := engine.Stats()
	assert.Equal(t, 3, stats.QueueLength)
	assert.Equal(t, 0, stats.DelayedJobs)
	assert.Equal(t, 2, stats.NormalJobs)
	assert.Equal(t, 1, stats.MonitoringJobs)
	assert.Equal(t, 3, stats.InFlight)
	assert.False(t, stats.Started)

	assert.Len(t, stats.Jobs, 3)
	assert.Equal(t, model.JobKindAnchor, stats.Jobs[0].Kind)
	assert.Equal(t, "isu_a", stats.Jobs[0].IssuanceID)
	assert.True(t, stats.Jobs[0].NotBefore.IsZero())
	assert.Equal(t, model.JobKindMonitor, stats.Jobs[2].Kind)

	engine.Drain(ctx)

	// Everything was requeued with a delay; the kind counts still cover the
	// delayed holding list.
	stats = engine.Stats()
	assert.Equal(t, 0, stats.QueueLength)
	assert.Equal(t, 3, stats.DelayedJobs)
	assert.Equal(t, 2, stats.NormalJobs)
	assert.Equal(t, 1, stats.MonitoringJobs)
	assert.Equal(t, 3, stats.InFlight)
	assert.Len(t, stats.Jobs, 3)
	for _, summary := range stats.Jobs {
		assert.False(t, summary.NotBefore.IsZero())
	}
}
