package runtime

import "errors"

var (
	// ErrNilBlock is returned when a nil block is pushed or started.
	ErrNilBlock = errors.New("runtime: nil block")

	// ErrBlockOnStack is returned when pushing a block that is already on
	// the stack. Block instances are single-use; loops push fresh
	// instances each round.
	ErrBlockOnStack = errors.New("runtime: block already on stack")

	// ErrEmptyStack is returned when popping an empty stack.
	ErrEmptyStack = errors.New("runtime: empty stack")

	// ErrStatementNotFound is returned by block factories when a push
	// action references a statement the program does not contain.
	ErrStatementNotFound = errors.New("runtime: statement not found")

	// ErrRunActive is returned by Start while a run is in progress.
	ErrRunActive = errors.New("runtime: run already active")

	// ErrRunFinished is returned by Start after the run has finished; a
	// Runtime executes exactly one run.
	ErrRunFinished = errors.New("runtime: run finished")
)
