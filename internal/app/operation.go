package app

import "dt-go/internal/dt"

// Operation tracks a CLI operation that may be recorded in the history.
// Operations are created in memory with ID=0. Only commands that change
// targets persist them (giving them an auto-increment ID from the database).
type Operation struct {
	ID         int64
	Deployment string
	Name       string
	Status     string
}

// NewOperation creates a new in-memory operation.
func NewOperation(deployment, name string) *Operation {
	return &Operation{
		Deployment: deployment,
		Name:       name,
		Status:     dt.StatusSuccess,
	}
}

// Persisted returns true if this operation has been saved to the history.
func (op *Operation) Persisted() bool {
	return op.ID != 0
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = dt.StatusError
}
