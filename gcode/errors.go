package gcode

import "fmt"

// ParseError reports a malformed comment marker, an unrecognised label,
// or a wrong-arity parameter list, together with the offending line.
type ParseError struct {
	LineNo  int
	Line    string
	Message string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error at line %d: %s (line: %q)", e.LineNo, e.Message, e.Line)
}

func parseErrf(lineNo int, line, format string, args ...interface{}) *ParseError {
	return &ParseError{LineNo: lineNo, Line: line, Message: fmt.Sprintf(format, args...)}
}

// StateError reports a violated shadow-interpreter invariant: double
// retraction, unretract while not retracted, or a reference to a
// retraction/tool state that can't exist yet.
type StateError struct {
	Message string
}

func (e *StateError) Error() string { return e.Message }

func stateErrf(format string, args ...interface{}) *StateError {
	return &StateError{Message: fmt.Sprintf(format, args...)}
}
