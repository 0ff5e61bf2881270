package loader

import (
	"fmt"
	"strings"

	"github.com/puckline/puckline/schema"
)

// ValidationError reports structural or referential schema problems.
// The document is never partially applied; the full violation list is
// surfaced to the caller.
type ValidationError struct {
	Violations []schema.Violation
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema document invalid: %d violation(s)", len(e.Violations))
	for _, v := range e.Violations {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}

// CompatibilityError reports backward-incompatible changes detected in
// migration mode. Blocks the load unless explicitly forced, in which
// case the same issues are surfaced as warnings on the result.
type CompatibilityError struct {
	Issues []schema.Violation
}

func (e *CompatibilityError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema document is backward-incompatible: %d issue(s)", len(e.Issues))
	for _, v := range e.Issues {
		b.WriteString("\n  - ")
		b.WriteString(v.String())
	}
	return b.String()
}
