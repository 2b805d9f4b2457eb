package vm

import (
	"errors"
	"fmt"

	"github.com/zurustar/anotherworld/pkg/opcode"
)

// ErrorType represents the type of runtime error.
type ErrorType string

// Every runtime error stops the frame loop.
const (
	ErrorIllegalOpcode ErrorType = "ILLEGAL_OPCODE"
	ErrorStackFault    ErrorType = "STACK_FAULT"
	ErrorPCOutOfRange  ErrorType = "PC_OUT_OF_RANGE"
	ErrorRenderDepth   ErrorType = "RENDER_DEPTH"
	ErrorResource      ErrorType = "RESOURCE"
	ErrorRunawayTask   ErrorType = "RUNAWAY_TASK"
)

var (
	// ErrIllegalOpcode is matched by errors for bytes outside the instruction
	// set.
	ErrIllegalOpcode = opcode.ErrIllegalOpcode

	// ErrStackFault is matched by call stack overflow and underflow errors.
	ErrStackFault = errors.New("stack fault")

	// ErrRunawayTask is matched when a task exceeds its step budget without
	// yielding.
	ErrRunawayTask = errors.New("task did not yield")
)

// RuntimeError represents an interpreter error with the task and program
// counter it occurred at.
type RuntimeError struct {
	Type    ErrorType
	Message string
	Task    int
	PC      int
	Err     error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	msg := fmt.Sprintf("[%s] %s (task %d, pc 0x%04x)", e.Type, e.Message, e.Task, e.PC)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string, task, pc int, cause error) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
		Task:    task,
		PC:      pc,
		Err:     cause,
	}
}

// NewStackOverflowError creates the error for a call beyond MaxCallDepth.
func NewStackOverflowError(task, pc int) *RuntimeError {
	return NewRuntimeError(ErrorStackFault,
		fmt.Sprintf("call stack overflow: depth exceeds maximum %d", MaxCallDepth),
		task, pc, ErrStackFault)
}

// NewStackUnderflowError creates the error for a return without a call.
func NewStackUnderflowError(task, pc int) *RuntimeError {
	return NewRuntimeError(ErrorStackFault, "return with empty call stack", task, pc, ErrStackFault)
}

// decodeError classifies an instruction decoding failure.
func decodeError(task, pc int, err error) *RuntimeError {
	if errors.Is(err, opcode.ErrIllegalOpcode) {
		return NewRuntimeError(ErrorIllegalOpcode, "cannot decode instruction", task, pc, err)
	}
	return NewRuntimeError(ErrorPCOutOfRange, "instruction outside code segment", task, pc, err)
}
