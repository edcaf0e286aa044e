// Copyright 2025 CloudWeGo Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrorKind classifies collaborator and prompt failures.
type ErrorKind string

const (
	KindTemplate          ErrorKind = "template"
	KindTransient         ErrorKind = "transient"
	KindContentPolicy     ErrorKind = "content_policy"
	KindMalformedResponse ErrorKind = "malformed_response"
)

// Sentinels for errors.Is. An *Error matches the sentinel of its kind.
var (
	ErrTemplate          = errors.New("template error")
	ErrTransient         = errors.New("transient error")
	ErrContentPolicy     = errors.New("content policy error")
	ErrMalformedResponse = errors.New("malformed response")
)

var sentinels = map[ErrorKind]error{
	KindTemplate:          ErrTemplate,
	KindTransient:         ErrTransient,
	KindContentPolicy:     ErrContentPolicy,
	KindMalformedResponse: ErrMalformedResponse,
}

// Error is a classified failure. Op names the operation that failed.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error with a formatted cause.
func Errorf(kind ErrorKind, op string, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsRetryable reports whether err may succeed when retried with the same input.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransient)
}

var transientMarkers = []string{
	"timeout",
	"timed out",
	"connection reset",
	"connection refused",
	"context deadline exceeded",
	"read tcp",
	"write tcp",
	"unexpected eof",
	"rate limit",
	"too many requests",
	"server overloaded",
	"service unavailable",
	"bad gateway",
	"status code: 429",
	"status code: 500",
	"status code: 502",
	"status code: 503",
	"status code: 504",
}

var policyMarkers = []string{
	"content_filter",
	"content filter",
	"content policy",
	"content management policy",
	"safety system",
	"data_inspection_failed",
}

// Classify maps an error from a collaborator call onto the taxonomy.
// Already classified errors and caller cancellation pass through unchanged;
// anything unrecognized is returned wrapped but unclassified, so it is not
// retried.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewError(KindTransient, op, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return NewError(KindTransient, op, err)
	}
	if code, ok := statusCode(err); ok {
		if code == 408 || code == 429 || code >= 500 {
			return NewError(KindTransient, op, err)
		}
	}

	msg := strings.ToLower(err.Error())
	for _, m := range policyMarkers {
		if strings.Contains(msg, m) {
			return NewError(KindContentPolicy, op, err)
		}
	}
	for _, m := range transientMarkers {
		if strings.Contains(msg, m) {
			return NewError(KindTransient, op, err)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

// HTTPStatusError is implemented by provider errors that carry a status code.
type HTTPStatusError interface {
	error
	HTTPStatus() int
}

func statusCode(err error) (int, bool) {
	var se HTTPStatusError
	if errors.As(err, &se) {
		return se.HTTPStatus(), true
	}
	return 0, false
}

// ClassifyFinish turns a completion stop reason into an error, if it
// signals a refusal.
func ClassifyFinish(op, finishReason string) error {
	switch strings.ToLower(finishReason) {
	case "content_filter", "content-filter", "safety", "refusal":
		return Errorf(KindContentPolicy, op, "model stopped with finish reason %q", finishReason)
	}
	return nil
}
