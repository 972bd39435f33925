package internal

// Severity classifies whether a component-local error should be treated
// as fatal to the current crawl operation or as a recoverable condition
// that callers may retry or route around.
type Severity int

const (
	SeverityFatal Severity = iota
	SeverityRecoverable
)
