package planner

import "fmt"

// PlannerError reports a condition the prime-tower, thermal or fan
// planner can't safely work around: a toolset with no feasible layer
// height, a layer whose tool activations it can't schedule, and so on.
type PlannerError struct {
	Stage   string
	Message string
}

func (e *PlannerError) Error() string {
	return fmt.Sprintf("%s planner: %s", e.Stage, e.Message)
}

func plannerErrf(stage, format string, args ...interface{}) *PlannerError {
	return &PlannerError{Stage: stage, Message: fmt.Sprintf(format, args...)}
}
