package faults

import (
	"context"
	"errors"
	"io/fs"
	"strings"
	"syscall"
	"time"
)

// Sentinel errors raised by collaborators and recognized by the classifier.
var (
	ErrEmptyInput          = errors.New("no text to convert")
	ErrNoVoices            = errors.New("no voices available")
	ErrVoiceNotFound       = errors.New("requested voice not found")
	ErrEngineStart         = errors.New("synthesis engine failed to start")
	ErrConverterMissing    = errors.New("audio converter not available")
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// Operation identities used for context-sensitive classification.
const (
	OpReadInput  = "read_input"
	OpListVoices = "list_voices"
	OpSynthesize = "synthesize"
	OpTranscode  = "transcode"
	OpMerge      = "merge"
	OpCleanup    = "cleanup"
	OpProbe      = "probe"
)

// Context carries the operation identity and any parameters that shape the
// classification.
type Context struct {
	Op    string
	Path  string
	Voice string
}

// template holds the static, table-driven part of a classification.
type template struct {
	severity        Severity
	canRetry        bool
	action          Action
	message         string
	troubleshooting []string
}

// templates is the category table. Severity for VoiceUnavailable depends on
// whether the whole catalog is empty or just one voice is missing; classify
// overrides it for the catalog-empty case.
var templates = map[Category]template{
	CategoryVoiceUnavailable: {
		severity: SeverityWarning,
		canRetry: true,
		action:   ActionSelectVoice,
		message:  "The selected voice is not available.",
		troubleshooting: []string{
			"Pick a different voice from the voice list.",
			"Refresh the voice list.",
			"Install additional voices for your synthesis engine.",
		},
	},
	CategoryEngineUnresponsive: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionRetry,
		message:  "The speech engine did not respond.",
		troubleshooting: []string{
			"Retry the conversion.",
			"Check that the synthesis engine is installed and on your PATH.",
			"Restart the application if the problem persists.",
		},
	},
	CategoryFileNotFound: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionBrowseFile,
		message:  "The file could not be found.",
		troubleshooting: []string{
			"Check that the file still exists at the chosen location.",
			"Browse for the file again.",
		},
	},
	CategoryAccessDenied: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionCheckPermissions,
		message:  "Permission to access the file was denied.",
		troubleshooting: []string{
			"Check the file permissions.",
			"Choose a file or folder you have access to.",
		},
	},
	CategoryIsDirectory: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionBrowseFile,
		message:  "The selected path is a folder, not a file.",
		troubleshooting: []string{
			"Select a text file instead of a folder.",
		},
	},
	CategoryUnsupportedFileType: {
		severity: SeverityError,
		canRetry: false,
		action:   ActionConvertFile,
		message:  "This file type is not supported.",
		troubleshooting: []string{
			"Convert the file to plain text (.txt) first.",
			"Copy the text and paste it directly.",
		},
	},
	CategoryFileTooLarge: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionSplitFile,
		message:  "The file is too large to convert in one go.",
		troubleshooting: []string{
			"Split the file into smaller parts.",
			"Reduce the selection and retry.",
		},
	},
	CategoryConverterMissing: {
		severity: SeverityWarning,
		canRetry: true,
		action:   ActionUseWav,
		message:  "MP3 output is unavailable because no audio converter was found.",
		troubleshooting: []string{
			"Switch the output format to WAV.",
			"Install ffmpeg to enable MP3 output.",
		},
	},
	CategoryConversionFailed: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionRetrySmaller,
		message:  "Audio conversion failed.",
		troubleshooting: []string{
			"Retry the conversion.",
			"Try a smaller chunk size.",
			"Switch the output format to WAV.",
		},
	},
	CategoryMergeFailed: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionUseWav,
		message:  "Combining the audio parts failed.",
		troubleshooting: []string{
			"Retry the conversion.",
			"Switch the output format to WAV.",
		},
	},
	CategoryEmptyInput: {
		severity: SeverityInfo,
		canRetry: false,
		action:   ActionAddText,
		message:  "There is no text to convert.",
		troubleshooting: []string{
			"Enter or load some text first.",
		},
	},
	CategoryCancelled: {
		severity: SeverityInfo,
		canRetry: false,
		action:   ActionNone,
		message:  "The conversion was cancelled.",
	},
	CategoryCleanup: {
		severity: SeverityWarning,
		canRetry: false,
		action:   ActionNone,
		message:  "A temporary file could not be removed.",
		troubleshooting: []string{
			"Temporary files may remain in the working folder and can be deleted manually.",
		},
	},
	CategoryUnknown: {
		severity: SeverityError,
		canRetry: true,
		action:   ActionRetry,
		message:  "An unexpected error occurred.",
		troubleshooting: []string{
			"Retry the operation.",
			"Check the log file for details.",
		},
	},
}

// Classifier maps raw failures to Records and keeps an audit trail of every
// classification in a bounded ring log. It holds no other state; the same
// raw signature and context always classify identically.
type Classifier struct {
	log *Log
	now func() time.Time
}

// NewClassifier creates a Classifier with a ring log of the given capacity.
// A capacity below 1 falls back to DefaultLogCapacity.
func NewClassifier(logCapacity int) *Classifier {
	return &Classifier{
		log: NewLog(logCapacity),
		now: time.Now,
	}
}

// Log returns the classifier's audit trail.
func (c *Classifier) Log() *Log {
	return c.log
}

// Classify normalizes err into a Record and appends it to the audit log.
// A nil err returns nil.
func (c *Classifier) Classify(err error, opCtx Context) *Record {
	if err == nil {
		return nil
	}

	category := categorize(err, opCtx)
	tmpl := templates[category]

	severity := tmpl.severity
	if category == CategoryVoiceUnavailable && errors.Is(err, ErrNoVoices) {
		// No catalog at all is a different grade of trouble than one
		// missing voice.
		severity = SeverityCritical
	}

	action := tmpl.action
	message := tmpl.message
	troubleshooting := tmpl.troubleshooting
	if category == CategoryVoiceUnavailable && errors.Is(err, ErrNoVoices) {
		action = ActionInstallVoices
		message = "No voices are installed."
		troubleshooting = []string{
			"Install at least one voice for your synthesis engine.",
			"Restart the application after installing voices.",
		}
	}

	// Switching to WAV is no remedy when the converter is missing at merge
	// time; the chunks are already in their final format.
	if category == CategoryConverterMissing && opCtx.Op == OpMerge {
		action = ActionInstallConverter
		message = "Combining the audio parts requires an audio converter."
		troubleshooting = []string{
			"Install ffmpeg to enable merging.",
			"Reduce the text so it fits in a single part.",
		}
	}

	now := c.now()
	rec := &Record{
		ID:              newRecordID(now),
		Timestamp:       now,
		Category:        category,
		Severity:        severity,
		UserMessage:     message,
		Troubleshooting: troubleshooting,
		CanRetry:        tmpl.canRetry,
		SuggestedAction: action,
		Op:              opCtx.Op,
		cause:           err,
	}

	c.log.Append(rec)
	return rec
}

// categorize resolves the failure category from the error identity, the OS
// error code, the operation context, and finally the message shape.
func categorize(err error, opCtx Context) Category {
	// Cleanup failures are always classified as cleanup, whatever the cause.
	if opCtx.Op == OpCleanup {
		return CategoryCleanup
	}

	if errors.Is(err, context.Canceled) {
		return CategoryCancelled
	}

	switch {
	case errors.Is(err, ErrEmptyInput):
		return CategoryEmptyInput
	case errors.Is(err, ErrNoVoices), errors.Is(err, ErrVoiceNotFound):
		return CategoryVoiceUnavailable
	case errors.Is(err, ErrEngineStart):
		return CategoryEngineUnresponsive
	case errors.Is(err, ErrConverterMissing):
		return CategoryConverterMissing
	case errors.Is(err, ErrUnsupportedFileType):
		return CategoryUnsupportedFileType
	case errors.Is(err, ErrFileTooLarge):
		return CategoryFileTooLarge
	}

	// Filesystem errors by OS code.
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return CategoryFileNotFound
	case errors.Is(err, fs.ErrPermission):
		return CategoryAccessDenied
	case errors.Is(err, syscall.EISDIR):
		return CategoryIsDirectory
	}

	// Timeouts: attribute to the operation that timed out.
	if errors.Is(err, context.DeadlineExceeded) {
		switch opCtx.Op {
		case OpMerge:
			return CategoryMergeFailed
		case OpTranscode:
			return CategoryConversionFailed
		default:
			return CategoryEngineUnresponsive
		}
	}

	// Operation context.
	switch opCtx.Op {
	case OpMerge:
		return CategoryMergeFailed
	case OpTranscode:
		return CategoryConversionFailed
	case OpSynthesize, OpListVoices:
		return CategoryEngineUnresponsive
	}

	// Message shape, last resort.
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "unsupported file type"):
		return CategoryUnsupportedFileType
	case strings.Contains(msg, "too large"):
		return CategoryFileTooLarge
	case strings.Contains(msg, "no voices"):
		return CategoryVoiceUnavailable
	case strings.Contains(msg, "timed out"), strings.Contains(msg, "timeout"):
		return CategoryEngineUnresponsive
	case strings.Contains(msg, "permission denied"):
		return CategoryAccessDenied
	}

	return CategoryUnknown
}
