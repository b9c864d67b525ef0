package types

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors for common failure modes.
var (
	ErrSoftBlock        = errors.New("soft block detected")
	ErrRetriesExhausted = errors.New("max retries exceeded")
	ErrQualityCheck     = errors.New("quality check failed")
	ErrUnknownKind      = errors.New("unknown job kind")
	ErrEmptyResponse    = errors.New("empty response body")
	ErrInvalidURL       = errors.New("invalid URL")
)

// FetchError wraps transport-level and HTTP status failures of a single attempt.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
	Retryable  bool
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch error for %s (status %d): %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch error for %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) IsRetryable() bool { return e.Retryable }

// SoftBlockError reports an HTTP 200 response whose content is a login wall
// or otherwise not the requested page.
type SoftBlockError struct {
	URL      string
	FinalURL string
	Reason   string
}

func (e *SoftBlockError) Error() string {
	return fmt.Sprintf("blocked or wrong page for %s (final=%s): %s", e.URL, e.FinalURL, e.Reason)
}

func (e *SoftBlockError) Unwrap() error { return ErrSoftBlock }

// FetchFailure is returned once every attempt for a URL has failed.
type FetchFailure struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchFailure) Error() string {
	return fmt.Sprintf("fetch failed for %s after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

func (e *FetchFailure) Unwrap() []error { return []error{ErrRetriesExhausted, e.Err} }

// QualityError reports missing ranks for a rank-contiguous job.
type QualityError struct {
	CategoryID  string
	RankingType string
	Missing     []int // first 20 missing ranks, ascending
	Total       int   // total number of missing ranks
}

func (e *QualityError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		parts[i] = fmt.Sprint(r)
	}
	return fmt.Sprintf("quality check: category %s %s missing ranks [%s] (%d total)",
		e.CategoryID, e.RankingType, strings.Join(parts, ", "), e.Total)
}

func (e *QualityError) Unwrap() error { return ErrQualityCheck }

// UnknownKindError is a catalog error for a job kind the engine cannot dispatch.
type UnknownKindError struct {
	CategoryID  string
	RankingType string
	Kind        string
}

func (e *UnknownKindError) Error() string {
	return fmt.Sprintf("unknown kind %q for job %s/%s", e.Kind, e.CategoryID, e.RankingType)
}

func (e *UnknownKindError) Unwrap() error { return ErrUnknownKind }

// StorageError wraps errors that occur during storage/export.
type StorageError struct {
	Backend string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error (%s): %v", e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// PipelineError wraps errors that occur in the row-assembly pipeline.
type PipelineError struct {
	Stage  string
	Record *ProductRecord
	Err    error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline error at stage %q: %v", e.Stage, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// Backoff returns the linear retry delay base + attempt seconds.
func Backoff(base time.Duration, attempt int) time.Duration {
	return base + time.Duration(attempt)*time.Second
}
