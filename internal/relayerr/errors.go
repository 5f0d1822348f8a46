// Package relayerr defines the cross-component error kinds from spec.md §7.
// Components wrap these sentinels with fmt.Errorf("...: %w", ...) so callers
// can classify failures with errors.Is without string matching.
package relayerr

import "errors"

var (
	// ErrStreamNotFound is recoverable: the bootstrapper and relay engine
	// retry rather than treating it as fatal.
	ErrStreamNotFound = errors.New("stream not found")

	// ErrBrokerUnavailable is recoverable: dispatcher and relay retry with
	// backoff.
	ErrBrokerUnavailable = errors.New("broker unavailable")

	// ErrStreamConfigMismatch signals that an existing stream's config does
	// not match the desired spec. Fatal in strict mode, a warning otherwise;
	// never auto-repaired.
	ErrStreamConfigMismatch = errors.New("stream config mismatch")

	// ErrDuplicateMessage is benign: the substrate reported the publish as a
	// duplicate ack and the core treats it as success.
	ErrDuplicateMessage = errors.New("duplicate message")

	// ErrDbTransient marks a database error the dispatcher should retry.
	ErrDbTransient = errors.New("transient database error")

	// ErrDbFatal marks a database error that should be surfaced by leaving
	// the row PENDING and logging, not by retrying in a hot loop.
	ErrDbFatal = errors.New("fatal database error")
)
