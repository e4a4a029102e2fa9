package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Failure markers. Every per-item failure carries exactly one of these in its
// chain so reports and decisions can classify it with errors.Is.
var (
	ErrQuotaExceeded    = errors.New("quota exceeded")
	ErrNotFound         = errors.New("not found")
	ErrInsufficientData = errors.New("insufficient data")
	ErrUpstream         = errors.New("upstream error")
	ErrConnection       = errors.New("connection failure")
	ErrTransform        = errors.New("transform failure")
	ErrLedgerIO         = errors.New("ledger io failure")
	ErrDelivery         = errors.New("delivery failure")
	ErrConfiguration    = errors.New("configuration error")
	ErrValidation       = errors.New("validation error")
)

// Kind is the report label for a classified failure.
type Kind string

const (
	KindQuotaExceeded    Kind = "quota_exceeded"
	KindNotFound         Kind = "not_found"
	KindInsufficientData Kind = "insufficient_data"
	KindUpstream         Kind = "upstream_error"
	KindConnection       Kind = "connection_failure"
	KindTransform        Kind = "transform_failure"
	KindLedgerIO         Kind = "ledger_io_failure"
	KindDelivery         Kind = "delivery_failure"
	KindConfiguration    Kind = "configuration_error"
	KindValidation       Kind = "validation_error"
	KindCanceled         Kind = "canceled"
	KindUnknown          Kind = "unknown"
)

var kindMarkers = []struct {
	marker error
	kind   Kind
}{
	{ErrLedgerIO, KindLedgerIO},
	{ErrQuotaExceeded, KindQuotaExceeded},
	{ErrNotFound, KindNotFound},
	{ErrInsufficientData, KindInsufficientData},
	{ErrTransform, KindTransform},
	{ErrConnection, KindConnection},
	{ErrUpstream, KindUpstream},
	{ErrDelivery, KindDelivery},
	{ErrConfiguration, KindConfiguration},
	{ErrValidation, KindValidation},
}

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrUpstream
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies err against the failure markers. The first matching
// marker wins, so wrapping order does not matter for the common cases.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, km := range kindMarkers {
		if errors.Is(err, km.marker) {
			return km.kind
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return KindCanceled
	}
	return KindUnknown
}

// IsSkip reports whether err describes an item that should be skipped rather
// than counted as a failure.
func IsSkip(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrInsufficientData)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
