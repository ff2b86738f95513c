// Copyright (C) 2025 The RouteMe Authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package client

import (
	"context"
	"time"

	"github.com/routeme/routeme/backend/models"
)

const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxAttempts  = 20
)

type StatusFetcher interface {
	TransactionStatus(ctx context.Context, transactionID string) (models.TransactionStatus, error)
}

type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeFailed
	// OutcomeTimedOut means the transaction was still pending after the last
	// attempt; the user should check its status manually.
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "timed_out"
	}
}

type PollOptions struct {
	Interval    time.Duration
	MaxAttempts int
	// Sleep waits between attempts. Defaults to a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

type PollResult struct {
	Outcome  Outcome
	Status   models.TransactionStatus
	Attempts int
	// LastErr is the error of the final attempt, if it failed.
	LastErr error
}

// AwaitCompletion polls the transaction until it reaches a terminal status
// or MaxAttempts fetches have been made. A failed fetch counts as an attempt.
// Only a cancelled context returns an error.
func AwaitCompletion(ctx context.Context, fetcher StatusFetcher, transactionID string, opts PollOptions) (*PollResult, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Sleep == nil {
		opts.Sleep = sleep
	}

	res := &PollResult{Outcome: OutcomeTimedOut, Status: models.StatusPending}
	for res.Attempts < opts.MaxAttempts {
		if res.Attempts > 0 {
			if err := opts.Sleep(ctx, opts.Interval); err != nil {
				return res, err
			}
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}

		res.Attempts++
		status, err := fetcher.TransactionStatus(ctx, transactionID)
		res.LastErr = err
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return res, ctxErr
			}
			continue
		}
		res.Status = status
		switch status {
		case models.StatusCompleted:
			res.Outcome = OutcomeCompleted
			return res, nil
		case models.StatusFailed, models.StatusCancelled:
			res.Outcome = OutcomeFailed
			return res, nil
		}
	}
	return res, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
