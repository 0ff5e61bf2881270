package commands

import (
	"github.com/puckline/puckline/errors"
	"github.com/puckline/puckline/loader"
	"github.com/puckline/puckline/policy"
)

// errDenied signals a deny decision from check. It carries an exit
// code rather than being a failure of the engine itself.
var errDenied = errors.New("access denied")

// ExitCode maps a command error to the process exit code: 1 for a
// deny decision, 2 for document validation failures, 3 for
// backward-compatibility rejections, 4 for everything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var schemaVal *loader.ValidationError
	var policyVal *policy.ValidationError
	var compat *loader.CompatibilityError
	switch {
	case errors.Is(err, errDenied):
		return 1
	case errors.As(err, &schemaVal), errors.As(err, &policyVal):
		return 2
	case errors.As(err, &compat):
		return 3
	default:
		return 4
	}
}
