package failure

import "github.com/fetchward/crawlkit/internal"

// Severity is an alias of internal.Severity so that every component's
// Severity() method (extractor, sanitizer, normalize, assets, robots, ...)
// satisfies ClassifiedError without a wrapping/conversion step.
type Severity = internal.Severity

// scheduler control flow
const (
	SeverityFatal       = internal.SeverityFatal
	SeverityRecoverable = internal.SeverityRecoverable
)

type ClassifiedError interface {
	error
	Severity() Severity
}
