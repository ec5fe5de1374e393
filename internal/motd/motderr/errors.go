// Package motderr holds the error taxonomy shared by the rendering pipeline.
package motderr

import "errors"

var (
	// ErrResolution: a single escape span or variable could not be resolved.
	// Always swallowed; the span renders as literal text.
	ErrResolution = errors.New("resolution failed")

	// ErrExternalUnavailable: a collaborator (fetch, RCON, storage) is missing
	// or failed. Swallowed per tag fallback.
	ErrExternalUnavailable = errors.New("external collaborator unavailable")

	// ErrSchemeLoad: a scheme is unknown or its data is malformed. Triggers
	// fallback to the next candidate.
	ErrSchemeLoad = errors.New("scheme load failed")

	// ErrNoApplicableScheme: every candidate and the default scheme failed.
	// The only error shown to players.
	ErrNoApplicableScheme = errors.New("no applicable scheme")
)

// Code maps err to a short label for logs and metrics.
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNoApplicableScheme):
		return "no_applicable_scheme"
	case errors.Is(err, ErrSchemeLoad):
		return "scheme_load"
	case errors.Is(err, ErrExternalUnavailable):
		return "external_unavailable"
	case errors.Is(err, ErrResolution):
		return "resolution"
	default:
		return "error"
	}
}
