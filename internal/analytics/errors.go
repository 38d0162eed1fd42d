package analytics

import "errors"

var (
	// ErrNotFound is returned when a referenced client is absent from the roster.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is returned before any computation when a query argument is out of range.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrInvalidRecord marks a malformed invoice or opportunity. It never fails a whole operation.
	ErrInvalidRecord = errors.New("invalid record")
	// ErrInvalidPolicy is returned when an engine is built from an inconsistent policy.
	ErrInvalidPolicy = errors.New("invalid risk policy")
)

// Warning kinds reported for records excluded from an analysis run.
const (
	WarningOrphanedRecord = "orphaned-record"
	WarningInvalidRecord  = "invalid-record"
)

// RecordWarning describes a record excluded from an analysis run
type RecordWarning struct {
	Kind     string `json:"kind"`
	RecordID int64  `json:"record_id"`
	Reason   string `json:"reason"`
}
