package core

// error_messages.go maps technical errors to user-facing messages with
// support codes.
//
// # File Errors (FILE001-FILE099)
//
//	FILE001 - File too large: upload exceeds UPLOAD_MAX_FILE_SIZE
//	          Patterns: "exceeds size limit", "request body too large"
//	FILE002 - Invalid CSV: file could not be parsed as CSV
//	          Patterns: "invalid csv"
//	FILE003 - File not found: a CSV path does not exist
//	          Patterns: "no such file"
//	FILE004 - No file: a required CSV was not supplied
//	          Patterns: "no file provided"
//	FILE005 - Empty file: the CSV has no header row
//	          Patterns: "empty file"
//
// # Rule and Mapping Errors (RULE001-RULE099)
//
//	RULE001 - Rule file not found
//	          Patterns: "rule file not found"
//	RULE002 - Mapping not found
//	          Patterns: "mapping not found"
//	RULE003 - Invalid rule or mapping file: unparseable YAML or a bad name
//	          Patterns: "parse rules", "parse mapping", "invalid file name"
//
// # Run Errors (RUN001-RUN099)
//
//	RUN001 - Run not found: unknown run id or artifact
//	         Patterns: "run not found", "invalid path"
//	RUN002 - System busy: every run slot is taken
//	         Patterns: "too many concurrent runs"
//	RUN003 - Run timed out or was cancelled
//	         Patterns: "context deadline exceeded", "context canceled"
//	RUN004 - Invalid run request: bad mode or missing inputs
//	         Patterns: "invalid run request"
//
// # Rate Limiting (RATE001)
//
//	RATE001 - Too many requests
//	          Patterns: "rate limit"
//
// # Default Error (ERR000)
//
// Fallback when no pattern matches. Check the application log for the
// technical error.
//
// Patterns are matched case-insensitively with strings.Contains and the
// first match wins, so specific patterns precede general ones.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors
	{
		pattern: "exceeds size limit",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file or raise UPLOAD_MAX_FILE_SIZE",
			Code:    "FILE001",
		},
	},
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file or raise UPLOAD_MAX_FILE_SIZE",
			Code:    "FILE001",
		},
	},
	{
		pattern: "invalid csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Ensure the file is comma-separated with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no such file",
		msg: UserMessage{
			Message: "CSV file not found",
			Action:  "Check the file path and try again",
			Code:    "FILE003",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was provided",
			Action:  "Select a CSV file or enter its path",
			Code:    "FILE004",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The file is empty",
			Action:  "Provide a CSV with a header row",
			Code:    "FILE005",
		},
	},

	// Rule and mapping errors
	{
		pattern: "rule file not found",
		msg: UserMessage{
			Message: "Rule file not found",
			Action:  "Pick one of the files listed under RULES_DIR",
			Code:    "RULE001",
		},
	},
	{
		pattern: "mapping not found",
		msg: UserMessage{
			Message: "Mapping not found",
			Action:  "Pick a saved mapping or create a new one",
			Code:    "RULE002",
		},
	},
	{
		pattern: "parse rules",
		msg: UserMessage{
			Message: "Rule file is not valid YAML",
			Action:  "Fix the YAML syntax of the rule file",
			Code:    "RULE003",
		},
	},
	{
		pattern: "parse mapping",
		msg: UserMessage{
			Message: "Mapping file is not valid YAML",
			Action:  "Fix the YAML syntax or save the mapping again",
			Code:    "RULE003",
		},
	},
	{
		pattern: "invalid file name",
		msg: UserMessage{
			Message: "Invalid rule or mapping name",
			Action:  "Use letters, digits, '-', '_' and '.' only",
			Code:    "RULE003",
		},
	},

	// Run errors
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Run not found",
			Action:  "Check the run id on the runs page",
			Code:    "RUN001",
		},
	},
	{
		pattern: "invalid path",
		msg: UserMessage{
			Message: "Requested run file is not available",
			Action:  "Download files from the run page",
			Code:    "RUN001",
		},
	},
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other runs",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Run timed out",
			Action:  "Try smaller files or raise UPLOAD_TIMEOUT",
			Code:    "RUN003",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Run was cancelled",
			Action:  "Start the run again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "invalid run request",
		msg: UserMessage{
			Message: "Run request is incomplete",
			Action:  "Compare runs need a left file, a right file and a rule file",
			Code:    "RUN004",
		},
	},

	// Rate limiting
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message. Errors
// matching no pattern get the ERR000 fallback.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}

// UserError pairs a technical error, kept for logging, with its user
// message.
type UserError struct {
	Technical error
	User      UserMessage
}

func (e *UserError) Error() string {
	return e.User.Message
}

func (e *UserError) Unwrap() error {
	return e.Technical
}

// NewUserError maps err to a UserError. Returns nil if err is nil.
func NewUserError(err error) *UserError {
	if err == nil {
		return nil
	}
	return &UserError{
		Technical: err,
		User:      MapError(err),
	}
}
