package ipsync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ipsyncd/ipsync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewValidation(t *testing.T) {
	records := &fakeRecordClient{}

	_, err := ipsync.New("", "ZTESTZONE", ipsync.UsingRecordClient(records))
	assert.Error(t, err, "empty domain must fail fast")

	_, err = ipsync.New("host.example.com", "", ipsync.UsingRecordClient(records))
	assert.Error(t, err, "empty zone ID must fail fast")

	_, err = ipsync.New("host.example.com", "ZTESTZONE")
	assert.Error(t, err, "a record client is required")

	_, err = ipsync.New("host.example.com", "ZTESTZONE",
		ipsync.UsingRecordClient(records),
		ipsync.WithInterval(0),
	)
	assert.Error(t, err, "non-positive recheck interval must fail fast")
}

func TestRunConvergesDriftedRecord(t *testing.T) {
	records := &fakeRecordClient{current: "203.0.113.9"}
	c, err := ipsync.New("host.example.com", "ZTESTZONE",
		ipsync.UsingRecordClient(records),
		ipsync.UsingResolver(ipsync.FromString("203.0.113.10")),
		ipsync.WithInterval(5*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	require.NotEmpty(t, records.setCalls, "the drifted record must be rewritten")
	assert.Len(t, records.setCalls, 1, "later ticks see a converged record and stay silent")
	assert.Equal(t, "203.0.113.10", records.current)
	assert.Equal(t, "203.0.113.10", c.State().LastKnownIP)
}

func TestRunIssuesNoWritesWhileResolutionFails(t *testing.T) {
	records := &fakeRecordClient{current: "203.0.113.9"}
	c, err := ipsync.New("host.example.com", "ZTESTZONE",
		ipsync.UsingRecordClient(records),
		ipsync.UsingResolver(failingResolver(errors.New("lookup timed out"))),
		ipsync.WithInterval(2*time.Millisecond),
		ipsync.WithMaxBackoff(8*time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, c.Run(ctx))

	assert.Empty(t, records.setCalls, "no DNS write may be attempted with unknown data")
	assert.Zero(t, records.fetchCalls)
	assert.GreaterOrEqual(t, c.State().ConsecutiveFailures, 3)
}

func TestStateSnapshotDuringRun(t *testing.T) {
	records := &fakeRecordClient{current: "203.0.113.9"}
	c, err := ipsync.New("host.example.com", "ZTESTZONE",
		ipsync.UsingRecordClient(records),
		ipsync.UsingResolver(ipsync.FromString("203.0.113.10")),
		ipsync.WithInterval(time.Millisecond),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// Poll State from another goroutine for the whole run; the race
	// detector flags any unguarded access to the observed state.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ctx.Err() == nil {
			_ = c.State()
		}
	}()

	require.NoError(t, c.Run(ctx))
	<-done
	assert.Equal(t, "203.0.113.10", c.State().LastKnownIP)
}

func TestRunExitsNonNilOnFatalFailure(t *testing.T) {
	records := &fakeRecordClient{fetchErr: ipsync.MarkFatal(errors.New("AccessDenied"))}
	c, err := ipsync.New("host.example.com", "ZTESTZONE",
		ipsync.UsingRecordClient(records),
		ipsync.UsingResolver(ipsync.FromString("203.0.113.10")),
		ipsync.WithInterval(time.Millisecond),
	)
	require.NoError(t, err)

	err = c.Run(context.Background())
	require.Error(t, err)
	assert.True(t, ipsync.IsFatal(err))
	assert.Equal(t, 1, records.fetchCalls, "a fatal failure terminates instead of retrying")
}
