package ipsync

import "errors"

// ErrRecordNotFound is returned by RecordClient.FetchCurrentIP when the zone
// exists but holds no A record for the managed name.
var ErrRecordNotFound = errors.New("no matching A record")

// fatalError wraps failures that will keep failing until an operator
// intervenes, such as rejected credentials or a zone that does not exist.
// The scheduler terminates on these instead of retrying forever against a
// target guaranteed to fail.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

// MarkFatal marks err as non-retryable. Custom RecordClient implementations
// should mark authorization and zone-configuration failures so the scheduler
// terminates instead of backing off.
func MarkFatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

// IsFatal reports whether any error in err's chain was marked with MarkFatal.
func IsFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}
