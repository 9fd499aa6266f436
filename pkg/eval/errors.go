package eval

import "errors"

// Sentinel errors for the failure modes of script evaluation. The tick
// budget error lives in pkg/task (task.ErrRunaway), since the budget
// belongs to the task.
var (
	// ErrSymbolNotFound reports a resolver miss across all tiers. It is
	// recoverable: $if guards and interpolations treat it as false or
	// empty.
	ErrSymbolNotFound = errors.New("eval: symbol not found")

	// ErrSandbox reports a disallowed attribute or assignment target.
	ErrSandbox = errors.New("eval: sandbox violation")

	// ErrStackDepth reports nested text/code re-entrance past the
	// task's stack limit.
	ErrStackDepth = errors.New("eval: script ran too deep; aborting")

	// ErrUnsupported reports a script construct outside the accepted
	// subset.
	ErrUnsupported = errors.New("eval: script construct not supported")
)

// MessageError is an intentional short-circuit that reports a plain
// message to the acting player. It is not logged as an error.
type MessageError struct {
	Text string
}

func (e *MessageError) Error() string { return e.Text }

// CommandError is an intentional short-circuit that reports a
// validation problem to the acting player. It is logged, but without a
// stack trace.
type CommandError struct {
	Text string
}

func (e *CommandError) Error() string { return e.Text }

// returnSignal carries a script return value up the statement walk.
// It never escapes the code-execution entry point.
type returnSignal struct {
	value any
}

func (*returnSignal) Error() string { return "eval: return outside code" }
