/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tomoncle/hummer/database"
)

var (
	ErrNilEntity     = errors.New("entity is nil")
	ErrEmptyBatch    = errors.New("entity batch is empty")
	ErrNotFound      = errors.New("no row matches the identifier")
	ErrMultipleRows  = errors.New("more than one row matches the identifier")
	ErrUnknownType   = errors.New("type has no relation metadata")
	ErrInvalidPath   = errors.New("invalid include path")
	ErrInvalidPolicy = errors.New("invalid delete policy")
)

// GatewayError is the only error kind returned by the repository package.
// Err is the underlying failure; Reason classifies it when it came from the
// store.
type GatewayError struct {
	Action Action
	Entity string
	IDs    []int64
	Reason database.SQLError
	Msg    string
	Err    error
}

func (e *GatewayError) Error() string {
	var b strings.Builder
	b.WriteString("repository: ")
	b.WriteString(e.Action.Desc())
	if e.Entity != "" {
		b.WriteString(" ")
		b.WriteString(e.Entity)
	}
	if len(e.IDs) > 0 {
		fmt.Fprintf(&b, " %v", e.IDs)
	}
	if e.Msg != "" {
		b.WriteString(": ")
		b.WriteString(e.Msg)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error { return e.Err }

// IsGatewayError reports whether err is or wraps a *GatewayError.
func IsGatewayError(err error) bool {
	var gwErr *GatewayError
	return errors.As(err, &gwErr)
}

// newError wraps cause into a GatewayError. A cause that already is a
// GatewayError is returned unchanged.
func newError(action Action, entity string, ids []int64, msg string, cause error) *GatewayError {
	var gwErr *GatewayError
	if errors.As(cause, &gwErr) {
		return gwErr
	}
	return &GatewayError{
		Action: action,
		Entity: entity,
		IDs:    ids,
		Reason: database.ClassifyError(cause),
		Msg:    msg,
		Err:    cause,
	}
}
