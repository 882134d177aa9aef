// Copyright 2024 Terminos Storage Protocol
// This file is part of the tos library.
//
// The tos library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The tos library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the tos library. If not, see <http://www.gnu.org/licenses/>.

package kad

import (
	"fmt"

	"github.com/zeebo/errs"
)

// Error is the class for every error this package returns. Failure
// modes are distinguished by sentinel value or type, not by an
// exception hierarchy.
var Error = errs.Class("kad")

var (
	// ErrTimeout is returned when a call received no reply within its
	// per-request deadline.
	ErrTimeout = Error.New("timeout")
	// ErrNoSuchRPC is returned when the remote has no handler
	// registered under the requested name.
	ErrNoSuchRPC = Error.New("no such rpc")
	// ErrBadFrame is returned by the codec when a datagram fails to
	// decode. It never surfaces past the transport boundary: the
	// transport logs and drops it instead of returning it to a caller.
	ErrBadFrame = Error.New("bad frame")
	// ErrNotFound is returned by Get when a lookup completes without
	// locating a value.
	ErrNotFound = Error.New("not found")
	// ErrCancelled is returned to every call still pending when the
	// transport is closed.
	ErrCancelled = Error.New("cancelled")
)

// HandlerError wraps an error a registered handler returned, carrying
// it across the wire as a tagged (kind, detail) pair.
type HandlerError struct {
	Detail string
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("kad: remote handler error: %s", e.Detail)
}

// newHandlerError builds a HandlerError from a local error value.
func newHandlerError(err error) *HandlerError {
	return &HandlerError{Detail: err.Error()}
}
