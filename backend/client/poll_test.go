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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/routeme/routeme/backend/models"
)

type scriptedFetcher struct {
	statuses []models.TransactionStatus
	errs     []error
	calls    int
}

func (f *scriptedFetcher) TransactionStatus(context.Context, string) (models.TransactionStatus, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return "", f.errs[i]
	}
	if i < len(f.statuses) {
		return f.statuses[i], nil
	}
	return models.StatusPending, nil
}

type recordingSleeper struct {
	waits []time.Duration
}

func (s *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func TestAwaitCompletion_TimesOutAfterMaxAttempts(t *testing.T) {
	fetcher := &scriptedFetcher{}
	sleeper := &recordingSleeper{}

	res, err := AwaitCompletion(context.Background(), fetcher, "tx-1", PollOptions{MaxAttempts: 20, Sleep: sleeper.sleep})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, res.Outcome)
	require.Equal(t, models.StatusPending, res.Status)
	require.Equal(t, 20, res.Attempts)
	require.Equal(t, 20, fetcher.calls)
	require.Len(t, sleeper.waits, 19)
	for _, d := range sleeper.waits {
		require.Equal(t, DefaultPollInterval, d)
	}
}

func TestAwaitCompletion_Defaults(t *testing.T) {
	fetcher := &scriptedFetcher{}
	sleeper := &recordingSleeper{}

	res, err := AwaitCompletion(context.Background(), fetcher, "tx-1", PollOptions{Sleep: sleeper.sleep})
	require.NoError(t, err)
	require.Equal(t, DefaultMaxAttempts, res.Attempts)
	require.Equal(t, DefaultMaxAttempts, fetcher.calls)
}

func TestAwaitCompletion_TerminalStatuses(t *testing.T) {
	cases := []struct {
		status  models.TransactionStatus
		outcome Outcome
	}{
		{models.StatusCompleted, OutcomeCompleted},
		{models.StatusFailed, OutcomeFailed},
		{models.StatusCancelled, OutcomeFailed},
	}
	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			fetcher := &scriptedFetcher{statuses: []models.TransactionStatus{models.StatusPending, models.StatusPending, tc.status}}
			sleeper := &recordingSleeper{}

			res, err := AwaitCompletion(context.Background(), fetcher, "tx-1", PollOptions{Interval: time.Second, MaxAttempts: 10, Sleep: sleeper.sleep})
			require.NoError(t, err)
			require.Equal(t, tc.outcome, res.Outcome)
			require.Equal(t, tc.status, res.Status)
			require.Equal(t, 3, res.Attempts)
			require.Equal(t, []time.Duration{time.Second, time.Second}, sleeper.waits)
		})
	}
}

func TestAwaitCompletion_FetchErrorsCountAsAttempts(t *testing.T) {
	boom := errors.New("network unreachable")
	fetcher := &scriptedFetcher{errs: []error{boom, boom, boom}}
	sleeper := &recordingSleeper{}

	res, err := AwaitCompletion(context.Background(), fetcher, "tx-1", PollOptions{MaxAttempts: 3, Sleep: sleeper.sleep})
	require.NoError(t, err)
	require.Equal(t, OutcomeTimedOut, res.Outcome)
	require.Equal(t, 3, res.Attempts)
	require.ErrorIs(t, res.LastErr, boom)
}

func TestAwaitCompletion_ErrorThenCompleted(t *testing.T) {
	fetcher := &scriptedFetcher{
		errs:     []error{errors.New("502")},
		statuses: []models.TransactionStatus{"", models.StatusCompleted},
	}
	sleeper := &recordingSleeper{}

	res, err := AwaitCompletion(context.Background(), fetcher, "tx-1", PollOptions{MaxAttempts: 5, Sleep: sleeper.sleep})
	require.NoError(t, err)
	require.Equal(t, OutcomeCompleted, res.Outcome)
	require.Equal(t, 2, res.Attempts)
	require.NoError(t, res.LastErr)
}

func TestAwaitCompletion_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{}

	res, err := AwaitCompletion(ctx, fetcher, "tx-1", PollOptions{
		MaxAttempts: 10,
		Sleep: func(ctx context.Context, d time.Duration) error {
			cancel()
			return ctx.Err()
		},
	})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 1, res.Attempts)
	require.Equal(t, OutcomeTimedOut, res.Outcome)
}

func TestAwaitCompletion_RealSleepHonoursContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := AwaitCompletion(ctx, &scriptedFetcher{}, "tx-1", PollOptions{Interval: time.Hour, MaxAttempts: 3})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Less(t, time.Since(start), time.Second)
}
