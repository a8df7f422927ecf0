/*
registry.go - External collaborators the core reads but does not own

PURPOSE:
  The ledger core verifies subjects exist and reads program parameters, but
  neither entity belongs to it. These interfaces keep the core testable
  without a real identity service or merchant catalog.

SEE ALSO:
  - store/sqlite/sqlite.go: Implements both against local tables
  - core.go: Reads programs fresh per operation, never caches
*/
package ledger

import "context"

// ProgramRegistry supplies program parameters. The core reads a program
// fresh at the start of every operation and treats it as immutable for the
// duration of that operation.
type ProgramRegistry interface {
	// GetProgram returns the program or ErrProgramNotFound.
	GetProgram(ctx context.Context, id ProgramID) (Program, error)
}

// SubjectDirectory answers existence checks for customer identities. The
// ledger needs nothing else from the identity collaborator.
type SubjectDirectory interface {
	SubjectExists(ctx context.Context, id SubjectID) (bool, error)
}
