package ingest

import "strings"

// UserMessage is an operator-facing rendering of an internal error.
type UserMessage struct {
	Message string // What happened
	Action  string // What to do about it
	Code    string // Error code for support reference
}

// errorPatterns maps substrings of internal errors to operator-facing
// messages. First match wins, so more specific patterns come first.
var errorPatterns = []struct {
	pattern string
	msg     UserMessage
}{
	{
		pattern: "header missing required columns",
		msg: UserMessage{
			Message: "The file header is missing required columns.",
			Action:  "Include title, officialUrl, and updatedAt columns (English or Japanese names).",
			Code:    "IMP001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "The file exceeds the size limit.",
			Action:  "Split the CSV into smaller files and import them separately.",
			Code:    "IMP002",
		},
	},
	{
		pattern: "import not found",
		msg: UserMessage{
			Message: "No import with that ID is in progress.",
			Action:  "Check the batch listing for completed imports.",
			Code:    "IMP003",
		},
	},
	{
		pattern: "validation errors",
		msg: UserMessage{
			Message: "This row still has validation errors and cannot be published.",
			Action:  "Fix the flagged fields in staging, then publish again.",
			Code:    "PUB001",
		},
	},
	{
		pattern: "conflict",
		msg: UserMessage{
			Message: "Another operator already published or archived this row.",
			Action:  "Refresh the staging list to see its current state.",
			Code:    "PUB002",
		},
	},
	{
		pattern: "not found",
		msg: UserMessage{
			Message: "The requested record does not exist.",
			Action:  "Refresh the listing; the record may have been removed.",
			Code:    "GEN001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "The database is unreachable.",
			Action:  "Try again in a few moments.",
			Code:    "DB001",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out.",
			Action:  "Try a smaller file or try again later.",
			Code:    "DB002",
		},
	},
	{
		pattern: "cancelled",
		msg: UserMessage{
			Message: "The import was cancelled.",
			Action:  "Start a new import when ready.",
			Code:    "IMP004",
		},
	},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred.",
	Action:  "Try again, and quote the error code if the problem persists.",
	Code:    "GEN000",
}

// MapError converts an internal error into an operator-facing message.
// The technical detail stays in the server logs.
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
