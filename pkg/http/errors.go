package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnsupported         = errors.New("server did not answer with 206 Partial Content")
	ErrNotFound            = errors.New("total size missing from Content-Range")
	ErrInvalidContentRange = errors.New("invalid Content-Range header")
	ErrNoResponse          = errors.New("no response body to read")
	ErrRequestCreation     = errors.New("failed to create request")
	ErrRangeNotSatisfiable = errors.New("range not satisfiable")
)

// StatusError is a reply other than 206 Partial Content, with the headers
// that tell the downloader how to carry on.
type StatusError struct {
	Code int
	// RetryAfter is the pause a 429 or 503 asked for, zero when absent.
	RetryAfter time.Duration
	// Total is N from "Content-Range: bytes */N" on a 416, -1 otherwise.
	Total int64
}

func newStatusError(resp *http.Response, now time.Time) *StatusError {
	se := &StatusError{Code: resp.StatusCode, Total: -1}

	switch resp.StatusCode {
	case http.StatusRequestedRangeNotSatisfiable:
		se.Total = unsatisfiedTotal(resp.Header.Get(contentRangeHeader))
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		se.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"), now)
	}

	return se
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%v: %d %s", ErrUnsupported, e.Code, http.StatusText(e.Code))
	if e.Total >= 0 {
		msg += fmt.Sprintf(" (resource is %d bytes)", e.Total)
	}
	if e.RetryAfter > 0 {
		msg += fmt.Sprintf(" (retry after %s)", e.RetryAfter)
	}
	return msg
}

func (e *StatusError) Unwrap() []error {
	if e.Code == http.StatusRequestedRangeNotSatisfiable {
		return []error{ErrUnsupported, ErrRangeNotSatisfiable}
	}
	return []error{ErrUnsupported}
}

// unsatisfiedTotal reads the size a 416 reports as "bytes */N".
func unsatisfiedTotal(value string) int64 {
	rest, ok := strings.CutPrefix(strings.TrimSpace(value), "bytes */")
	if !ok {
		return -1
	}

	total, err := strconv.ParseInt(strings.TrimSpace(rest), 10, 64)
	if err != nil || total < 0 {
		return -1
	}

	return total
}

// parseRetryAfter accepts both delay-seconds and an HTTP date.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}

	return 0
}
