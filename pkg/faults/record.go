// Package faults normalizes raw failures into classified records that carry
// everything the host needs: severity, a user-ready message, troubleshooting
// steps, retryability and a machine-readable suggested action.
package faults

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category identifies the failure class.
type Category string

// Failure taxonomy.
const (
	CategoryVoiceUnavailable    Category = "voice_unavailable"
	CategoryEngineUnresponsive  Category = "engine_unresponsive"
	CategoryFileNotFound        Category = "file_not_found"
	CategoryAccessDenied        Category = "access_denied"
	CategoryIsDirectory         Category = "is_directory"
	CategoryUnsupportedFileType Category = "unsupported_file_type"
	CategoryFileTooLarge        Category = "file_too_large"
	CategoryConverterMissing    Category = "converter_missing"
	CategoryConversionFailed    Category = "conversion_failed"
	CategoryMergeFailed         Category = "merge_failed"
	CategoryEmptyInput          Category = "empty_input"
	CategoryCancelled           Category = "cancelled"
	CategoryCleanup             Category = "cleanup"
	CategoryUnknown             Category = "unknown"
)

// Severity grades a classified failure.
type Severity string

// Severity levels.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Action is a machine-readable remedial suggestion for the UI boundary.
type Action string

// Suggested actions.
const (
	ActionNone             Action = "none"
	ActionRetry            Action = "retry"
	ActionInstallVoices    Action = "install_voices"
	ActionSelectVoice      Action = "select_voice"
	ActionBrowseFile       Action = "browse_file"
	ActionCheckPermissions Action = "check_permissions"
	ActionConvertFile      Action = "convert_file"
	ActionSplitFile        Action = "split_file"
	ActionUseWav           Action = "use_wav"
	ActionInstallConverter Action = "install_converter"
	ActionRetrySmaller     Action = "retry_smaller"
	ActionAddText          Action = "add_text"
)

// Record is a normalized failure descriptor. Records are immutable after
// creation.
type Record struct {
	ID              string
	Timestamp       time.Time
	Category        Category
	Severity        Severity
	UserMessage     string
	Troubleshooting []string
	CanRetry        bool
	SuggestedAction Action
	Op              string

	cause error
}

// Error implements the error interface.
func (r *Record) Error() string {
	if r.cause != nil {
		return fmt.Sprintf("%s: %v", r.UserMessage, r.cause)
	}
	return r.UserMessage
}

// Unwrap returns the raw failure this record was classified from.
func (r *Record) Unwrap() error {
	return r.cause
}

// Retryable reports whether a retry may succeed. Satisfies retry.Retryable.
func (r *Record) Retryable() bool {
	return r.CanRetry
}

// newRecordID produces IDs of the form err_<unix-millis>_<random>.
func newRecordID(now time.Time) string {
	random := strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
	return fmt.Sprintf("err_%d_%s", now.UnixMilli(), random)
}
