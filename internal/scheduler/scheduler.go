/*
Copyright 2025.

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

// Package scheduler runs the vault's periodic background drivers (C12):
// rotation due-processing and lease-expiry processing. Both run on the
// scheduler's own worker, separate from request-handling goroutines, so a
// slow tick never wedges the request path.
package scheduler

import (
	"context"

	"github.com/go-logr/logr"
	"github.com/robfig/cron/v3"
)

// RotationDriver is the subset of rotation.Service the scheduler depends on.
type RotationDriver interface {
	ProcessDueRotations(ctx context.Context) (int, error)
}

// LeaseDriver is the subset of lease.Service the scheduler depends on.
type LeaseDriver interface {
	ProcessExpiredLeases(ctx context.Context) (int, error)
}

const (
	rotationSchedule = "@every 60s"
	leaseSchedule    = "@every 30s"
)

// Scheduler owns the two periodic drivers required by the spec. It is a
// thin wrapper over robfig/cron configured with SkipIfStillRunning so a
// slow tick never overlaps with itself.
type Scheduler struct {
	cron *cron.Cron
	log  logr.Logger
}

// New builds a Scheduler wired to rotation and lease drivers. Passing a nil
// driver disables that job entirely. vaultd always passes both drivers and
// has no test-mode setting that turns them off.
func New(rotation RotationDriver, lease LeaseDriver, log logr.Logger) *Scheduler {
	log = log.WithName("scheduler")
	c := cron.New(cron.WithChain(
		cron.Recover(cronLogger{log}),
		cron.SkipIfStillRunning(cronLogger{log}),
	))

	s := &Scheduler{cron: c, log: log}

	if rotation != nil {
		_, err := c.AddFunc(rotationSchedule, func() {
			ctx := context.Background()
			n, err := rotation.ProcessDueRotations(ctx)
			if err != nil {
				log.Error(err, "process due rotations")
				return
			}
			log.V(1).Info("processed due rotations", "count", n)
		})
		if err != nil {
			log.Error(err, "register rotation driver")
		}
	}

	if lease != nil {
		_, err := c.AddFunc(leaseSchedule, func() {
			ctx := context.Background()
			n, err := lease.ProcessExpiredLeases(ctx)
			if err != nil {
				log.Error(err, "process expired leases")
				return
			}
			log.V(1).Info("processed expired leases", "count", n)
		})
		if err != nil {
			log.Error(err, "register lease driver")
		}
	}

	return s
}

// Start begins running the scheduler's drivers on their own worker. It does
// not block.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the scheduler and waits for any in-flight tick to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// cronLogger adapts logr.Logger to cron.Logger.
type cronLogger struct {
	log logr.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.V(1).Info(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(err, msg, keysAndValues...)
}
