package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind partitions failures by how the audit run must react to them.
type Kind int

const (
	// KindConfig is an invalid input or configuration; aborts the run.
	KindConfig Kind = iota
	// KindParse is a malformed workflow document; the document is skipped.
	KindParse
	// KindRepositoryAccess is a denied or missing repository; the
	// repository is skipped.
	KindRepositoryAccess
	// KindRateLimit is an exhausted API budget that survived the internal
	// backoff-and-retry.
	KindRateLimit
	// KindTransient is a network or 5xx failure that exceeded the retry
	// ceiling.
	KindTransient
	// KindCursorStalled is a pagination cursor that stopped advancing;
	// the traversal protocol is broken and the run aborts.
	KindCursorStalled
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindParse:
		return "parse"
	case KindRepositoryAccess:
		return "repository-access"
	case KindRateLimit:
		return "rate-limit"
	case KindTransient:
		return "transient"
	case KindCursorStalled:
		return "cursor-stalled"
	}
	return "unknown"
}

// AuditError is a structured error carrying the failure kind and contextual
// details.
type AuditError struct {
	Kind    Kind
	Message string
	Cause   error
	Details map[string]interface{}
}

func (e *AuditError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Message)

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	if len(e.Details) > 0 {
		sb.WriteString(" (")
		first := true
		for _, key := range detailOrder {
			value, ok := e.Details[key]
			if !ok {
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "%s: %v", key, value)
			first = false
		}
		sb.WriteString(")")
	}

	return sb.String()
}

// detailOrder keeps Error() output stable for tests and logs.
var detailOrder = []string{"repository", "path", "field", "status", "resetAt", "cursor"}

func (e *AuditError) Unwrap() error { return e.Cause }

// Is matches other AuditErrors by kind so callers can branch on taxonomy
// with errors.Is.
func (e *AuditError) Is(target error) bool {
	var other *AuditError
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

// IsKind reports whether err is an AuditError of the given kind.
func IsKind(err error, kind Kind) bool {
	var auditErr *AuditError
	return errors.As(err, &auditErr) && auditErr.Kind == kind
}

// NewConfigError creates a configuration error that aborts the run.
func NewConfigError(message string, cause error) *AuditError {
	return &AuditError{Kind: KindConfig, Message: message, Cause: cause}
}

// NewParseError creates a parse error tagged with the offending YAML path.
func NewParseError(message string, cause error, path string) *AuditError {
	details := make(map[string]interface{})
	if path != "" {
		details["path"] = path
	}
	return &AuditError{Kind: KindParse, Message: message, Cause: cause, Details: details}
}

// Path returns the offending YAML path of a parse error, if recorded.
func (e *AuditError) Path() string {
	if path, ok := e.Details["path"].(string); ok {
		return path
	}
	return ""
}

// NewRepositoryAccessError creates a per-repository access failure.
func NewRepositoryAccessError(message string, cause error, repository string) *AuditError {
	details := make(map[string]interface{})
	if repository != "" {
		details["repository"] = repository
	}
	return &AuditError{Kind: KindRepositoryAccess, Message: message, Cause: cause, Details: details}
}

// NewRateLimitError creates a rate-limit exhaustion error.
func NewRateLimitError(message string, resetAt time.Time) *AuditError {
	details := map[string]interface{}{}
	if !resetAt.IsZero() {
		details["resetAt"] = resetAt.UTC().Format(time.RFC3339)
	}
	return &AuditError{Kind: KindRateLimit, Message: message, Details: details}
}

// NewTransientError creates a retryable network failure. Callers surface it
// as fatal only after the retry ceiling is exceeded.
func NewTransientError(message string, cause error) *AuditError {
	return &AuditError{Kind: KindTransient, Message: message, Cause: cause}
}

// NewCursorStalledError creates a fatal pagination protocol error.
func NewCursorStalledError(cursor string) *AuditError {
	return &AuditError{
		Kind:    KindCursorStalled,
		Message: "pagination cursor stopped advancing",
		Details: map[string]interface{}{"cursor": cursor},
	}
}
