package workflow

import (
	"context"
	"time"
)

// Repository persists workflows and their approver rows.
//
// Respond and Finalize are conditional on the current status being pendente,
// so of two concurrent responses for the same approver only one succeeds.
type Repository interface {
	// Create inserts w and its approvers, assigning ids in place.
	Create(ctx context.Context, w *Workflow) error
	// Get returns the workflow with approvers ordered by ordem.
	Get(ctx context.Context, id int64) (Workflow, error)
	// ActiveForRecord returns the pendente workflow of a record or ErrNotFound.
	ActiveForRecord(ctx context.Context, recordID int64) (Workflow, error)
	// Respond moves a pendente approver row of a pendente workflow to status.
	// ErrNotFound when the pair does not exist, ErrConflict when either row
	// already left pendente.
	Respond(ctx context.Context, workflowID, aprovadorID int64, status Status, obs string, at time.Time) error
	// Reject records a rejection and finalizes the workflow as rejeitado atomically.
	Reject(ctx context.Context, workflowID, aprovadorID int64, motivo string, at time.Time) error
	// Finalize closes a pendente workflow. ErrConflict if already closed.
	Finalize(ctx context.Context, id int64, status Status, obs string, at time.Time) error
	// Tally counts approver responses from a fresh read.
	Tally(ctx context.Context, id int64) (Tally, error)
	// PendingForUser lists pendente approver rows of pendente workflows for a
	// user, newest workflow first. Numero is left empty.
	PendingForUser(ctx context.Context, userID int64) ([]PendingApproval, error)
}
