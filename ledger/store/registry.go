package store

import (
	"context"
	"sort"
	"sync"

	"github.com/tally/loyalty-engine/ledger"
)

// =============================================================================
// MEMORY REGISTRY / DIRECTORY - Program and subject collaborators for dev
// =============================================================================

// MemoryRegistry is an in-memory ProgramRegistry.
type MemoryRegistry struct {
	mu       sync.RWMutex
	programs map[ledger.ProgramID]ledger.Program
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{programs: make(map[ledger.ProgramID]ledger.Program)}
}

func (r *MemoryRegistry) GetProgram(_ context.Context, id ledger.ProgramID) (ledger.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	program, ok := r.programs[id]
	if !ok {
		return ledger.Program{}, ledger.ErrProgramNotFound
	}
	return program, nil
}

func (r *MemoryRegistry) PutProgram(_ context.Context, program ledger.Program) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.programs[program.ID] = program
	return nil
}

func (r *MemoryRegistry) ListPrograms(_ context.Context) ([]ledger.Program, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	programs := make([]ledger.Program, 0, len(r.programs))
	for _, p := range r.programs {
		programs = append(programs, p)
	}
	sort.Slice(programs, func(i, j int) bool { return programs[i].ID < programs[j].ID })
	return programs, nil
}

// MemoryDirectory is an in-memory SubjectDirectory.
type MemoryDirectory struct {
	mu       sync.RWMutex
	subjects map[ledger.SubjectID]bool
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{subjects: make(map[ledger.SubjectID]bool)}
}

func (d *MemoryDirectory) SubjectExists(_ context.Context, id ledger.SubjectID) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.subjects[id], nil
}

func (d *MemoryDirectory) AddSubject(_ context.Context, id ledger.SubjectID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subjects[id] = true
	return nil
}
