// Package domain contains the core entities for the briefing generation and
// distribution pipeline.
package domain

import "errors"

// Error taxonomy. Callers classify with errors.Is; error text is never
// inspected to decide behavior.
var (
	// ErrNotFound is returned when a referenced template, content, channel,
	// job or delivery does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned on duplicate identity, e.g. a channel with the
	// same (template, type, name) or a template name that is already taken.
	ErrConflict = errors.New("entity already exists")

	// ErrValidation is returned for malformed criteria or structure. Never
	// retried.
	ErrValidation = errors.New("validation failed")

	// ErrNoActiveChannels is returned when dispatch resolves an empty channel
	// set. A reportable error, not a silent success.
	ErrNoActiveChannels = errors.New("no active channels for content")

	// ErrDependencyUnavailable is returned when the corpus, the LLM backend
	// or a delivery transport cannot be reached. Retried with bounded backoff.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrFatalState is returned when persisted state violates an invariant,
	// e.g. two running jobs for one template. Logged and abandoned, never
	// auto-retried.
	ErrFatalState = errors.New("fatal state invariant violation")

	// ErrNoFieldsToUpdate is returned when an update request carries no fields.
	ErrNoFieldsToUpdate = errors.New("no fields to update")
)
