package ipsync

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// OutcomeKind classifies the result of one reconciliation pass.
type OutcomeKind int

const (
	// NoChangeNeeded means the record already holds the resolved address.
	NoChangeNeeded OutcomeKind = iota
	// Updated means the record was rewritten with a new address.
	Updated
	// TransientFailure means the pass failed but is worth retrying.
	TransientFailure
	// FatalFailure means retrying cannot help and the agent should stop.
	FatalFailure
)

func (k OutcomeKind) String() string {
	switch k {
	case NoChangeNeeded:
		return "no_change_needed"
	case Updated:
		return "updated"
	case TransientFailure:
		return "transient_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return "unknown"
	}
}

// Outcome is the result of one reconciliation pass. OldIP and NewIP are set
// for NoChangeNeeded and Updated; Err is set for the failure kinds.
type Outcome struct {
	Kind  OutcomeKind
	OldIP string
	NewIP string
	Err   error
}

// ObservedState is the reconciler's in-memory view of the record. It is
// never persisted: after a restart the record itself is re-fetched before
// any cached value is trusted, because the DNS record is the single source
// of truth.
type ObservedState struct {
	LastKnownIP         string
	LastUpdate          time.Time
	ConsecutiveFailures int
}

// UnknownIP is the LastKnownIP value before the first successful pass.
const UnknownIP = "unknown"

func newReconciler(resolver Resolver, records RecordClient, zoneID, domain string, logger logrus.FieldLogger) *reconciler {
	return &reconciler{
		resolver: resolver,
		records:  records,
		zoneID:   zoneID,
		domain:   domain,
		logger:   logger,
		now:      time.Now,
		state:    ObservedState{LastKnownIP: UnknownIP},
	}
}

// reconciler compares the host's resolved public IP against the record's
// current value and rewrites the record when they differ. One instance is
// driven by one scheduler; mu guards state so State can be read while a
// pass is in flight.
type reconciler struct {
	resolver Resolver
	records  RecordClient
	zoneID   string
	domain   string
	logger   logrus.FieldLogger
	now      func() time.Time

	mu    sync.Mutex
	state ObservedState
}

// Reconcile runs one pass: resolve the public IP, fetch the record, and
// upsert the record if the two differ. No write is ever attempted when
// either read fails.
func (r *reconciler) Reconcile(ctx context.Context) Outcome {
	if tracker, ok := r.records.(changeTracker); ok {
		pending, err := tracker.ChangePending(ctx)
		switch {
		case err != nil:
			r.logger.WithError(err).Warn("could not check change propagation status")
		case pending:
			// informational only; the fetched record value below stays authoritative
			r.logger.Debug("previous record change still propagating")
		}
	}

	addr, err := r.resolver.Resolve(ctx)
	if err != nil {
		return r.fail(errors.Wrap(err, "resolving public IP"))
	}
	resolved := addr.String()

	current, err := r.records.FetchCurrentIP(ctx, r.zoneID, r.domain)
	if err != nil {
		return r.fail(errors.Wrapf(err, "fetching A record for %s", r.domain))
	}

	// Byte-exact comparison, not semantic IP equality: a record holding a
	// formatting variant of the same address counts as drift and is
	// rewritten, converging the record to canonical form.
	if current == resolved {
		r.mu.Lock()
		r.state.LastKnownIP = resolved
		r.state.ConsecutiveFailures = 0
		r.mu.Unlock()
		return Outcome{Kind: NoChangeNeeded, OldIP: current, NewIP: resolved}
	}

	if err := r.records.SetIP(ctx, r.zoneID, r.domain, resolved); err != nil {
		return r.fail(errors.Wrapf(err, "updating A record for %s", r.domain))
	}
	r.mu.Lock()
	r.state.LastKnownIP = resolved
	r.state.LastUpdate = r.now()
	r.state.ConsecutiveFailures = 0
	r.mu.Unlock()
	return Outcome{Kind: Updated, OldIP: current, NewIP: resolved}
}

func (r *reconciler) fail(err error) Outcome {
	r.mu.Lock()
	r.state.ConsecutiveFailures++
	r.mu.Unlock()
	if IsFatal(err) {
		return Outcome{Kind: FatalFailure, Err: err}
	}
	return Outcome{Kind: TransientFailure, Err: err}
}

// State returns a snapshot of the observed state. It is safe to call from
// any goroutine, including while a pass is running.
func (r *reconciler) State() ObservedState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}
