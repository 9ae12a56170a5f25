/*
Copyright 2026 The kube-borg-backup authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

// Package errs tags errors with the kinds enumerated in spec.md §7 so that
// each of the three CLI programs can map a failure to the correct exit code
// without re-deriving the classification at every call site.
package errs

import "errors"

// Kind is one of the error classes from spec.md §7.
type Kind int

const (
	// KindGeneric covers object-lifecycle and hook failures that are
	// recorded per-entry and surfaced in a run's failure summary.
	KindGeneric Kind = iota
	KindConfig
	KindClusterAuth
	KindRBAC
	KindShutdown
)

// ExitCode returns the process exit code for k, per spec.md §6/§7.
func (k Kind) ExitCode() int {
	switch k {
	case KindConfig:
		return 2
	case KindClusterAuth:
		return 3
	case KindShutdown:
		return 143
	default:
		return 1
	}
}

// Error wraps an underlying error with a Kind.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string { return e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Config wraps err as a KindConfig error (exit 2).
func Config(err error) error { return &Error{Kind: KindConfig, Err: err} }

// ClusterAuth wraps err as a KindClusterAuth error (exit 3).
func ClusterAuth(err error) error { return &Error{Kind: KindClusterAuth, Err: err} }

// RBAC wraps err as a KindRBAC error, which is fatal like ClusterAuth but
// keeps a distinct Kind so callers can name the missing API group/verbs in
// the message (§4.4 step 2, §7 item 7).
func RBAC(err error) error { return &Error{Kind: KindRBAC, Err: err} }

// Shutdown wraps err (or nil) as a KindShutdown error (exit 143).
func Shutdown(err error) error {
	if err == nil {
		err = errSignalShutdown
	}
	return &Error{Kind: KindShutdown, Err: err}
}

var errSignalShutdown = simpleErr("signal-initiated shutdown")

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

// ExitCode extracts the exit code for err, defaulting to 1 for any error
// that isn't a *Error (generic/object-lifecycle failures surfaced as a
// failure summary map to exit 1 per §7).
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind.ExitCode()
	}
	return 1
}
