package diffgrok

import (
	"errors"
	"fmt"
)

// ErrInterrupted is returned when Config.Interrupt reports cancellation
// between accepted steps.
var ErrInterrupted = errors.New("diffgrok: interrupted")

// ConfigError reports an invariant violation on the problem descriptor
// detected before integration begins.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string {
	return "diffgrok: config: " + e.Msg
}

func configErrorf(format string, a ...interface{}) *ConfigError {
	return &ConfigError{Msg: fmt.Sprintf(format, a...)}
}

// NumericError reports a non-finite value in a step result or in f. A
// non-finite step result is reported only if it persists after one Jacobian
// refresh and step bisection; a non-finite f at a newly accepted point is
// reported at once, without a retry. A non-finite J or W surfaces through
// the singular-factorization path instead.
type NumericError struct {
	T     float64
	Stage string
}

func (e *NumericError) Error() string {
	return fmt.Sprintf("diffgrok: %snon-finite value at t=%g", stagePrefix(e.Stage), e.T)
}

// SingularError reports a W matrix that remained singular after a forced
// Jacobian refresh.
type SingularError struct {
	T     float64
	Stage string
}

func (e *SingularError) Error() string {
	return fmt.Sprintf("diffgrok: %ssingular iteration matrix at t=%g", stagePrefix(e.Stage), e.T)
}

// ConvergenceError reports that the controller could not advance: either the
// consecutive-rejection cap was exceeded or the step shrank below the minimum.
type ConvergenceError struct {
	T          float64
	Stage      string
	Rejections int
}

func (e *ConvergenceError) Error() string {
	if e.Rejections > 0 {
		return fmt.Sprintf("diffgrok: %scannot advance past t=%g after %d consecutive rejections", stagePrefix(e.Stage), e.T, e.Rejections)
	}
	return fmt.Sprintf("diffgrok: %sstep size underflow at t=%g", stagePrefix(e.Stage), e.T)
}

func stagePrefix(stage string) string {
	if stage == "" {
		return ""
	}
	return stage + ": "
}
