package core

import "fmt"

// Severity classifies a user-facing message emitted by a workflow
// operation. The four levels mirror what the interactive frontend renders.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Message is an informational result of a workflow operation. Core
// operations return messages instead of printing; the web and CLI layers
// decide how to render them.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// Infof builds an info message.
func Infof(format string, args ...any) Message {
	return Message{Severity: SeverityInfo, Text: fmt.Sprintf(format, args...)}
}

// Successf builds a success message.
func Successf(format string, args ...any) Message {
	return Message{Severity: SeveritySuccess, Text: fmt.Sprintf(format, args...)}
}

// Warningf builds a warning message.
func Warningf(format string, args ...any) Message {
	return Message{Severity: SeverityWarning, Text: fmt.Sprintf(format, args...)}
}

// Errorf builds an error message.
func Errorf(format string, args ...any) Message {
	return Message{Severity: SeverityError, Text: fmt.Sprintf(format, args...)}
}
