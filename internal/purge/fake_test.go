package purge

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/RichardoC/pawtrack/internal/backend"
	"github.com/RichardoC/pawtrack/internal/models"
)

const testPatient = "3F2504E0-4F89-11D3-9A0C-0305E82C3301"

// fakeBackend is an in-memory message API. An empty conversation answers
// the first page with 404, like the real backend does for unknown patients.
type fakeBackend struct {
	mu        sync.Mutex
	messages  []models.Message
	deleted   map[string]bool
	listCalls []int
	// listErr fails the given page number.
	listErr map[int]error
	// deleteErr fails deletes of the given id.
	deleteErr map[string]error
	// beforeDelete runs outside the lock at the start of each delete.
	beforeDelete func(id string)
	deleteCalls  int
}

func newFakeBackend(n int) *fakeBackend {
	f := &fakeBackend{
		deleted:   make(map[string]bool),
		listErr:   make(map[int]error),
		deleteErr: make(map[string]error),
	}
	for i := 0; i < n; i++ {
		f.messages = append(f.messages, models.Message{
			ID:        fmt.Sprintf("msg-%04d", i),
			PatientID: testPatient,
			Role:      models.RoleUser,
			Content:   "Max is eating again after the dental.",
		})
	}
	return f
}

func (f *fakeBackend) ListMessages(_ context.Context, _, _ string, pageNumber, pageSize int) (backend.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.listCalls = append(f.listCalls, pageNumber)
	if err := f.listErr[pageNumber]; err != nil {
		return backend.Page{}, err
	}

	remaining := make([]models.Message, 0, len(f.messages))
	for _, m := range f.messages {
		if !f.deleted[m.ID] {
			remaining = append(remaining, m)
		}
	}
	if len(remaining) == 0 && pageNumber == 1 {
		return backend.Page{}, &backend.StatusError{Op: "list messages", StatusCode: http.StatusNotFound}
	}

	start := (pageNumber - 1) * pageSize
	if start > len(remaining) {
		start = len(remaining)
	}
	end := start + pageSize
	if end > len(remaining) {
		end = len(remaining)
	}
	return backend.Page{Shape: backend.ShapeBareArray, Messages: remaining[start:end]}, nil
}

func (f *fakeBackend) DeleteMessage(_ context.Context, _, id string) error {
	if f.beforeDelete != nil {
		f.beforeDelete(id)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.deleteCalls++
	if err := f.deleteErr[id]; err != nil {
		return err
	}
	if f.deleted[id] {
		return &backend.StatusError{Op: "delete message " + id, StatusCode: http.StatusNotFound}
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeBackend) calls() ([]int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.listCalls...), f.deleteCalls
}

type memoryRecorder struct {
	mu   sync.Mutex
	runs []models.PurgeRun
}

func (r *memoryRecorder) RecordPurge(_ context.Context, run *models.PurgeRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs = append(r.runs, *run)
	return nil
}
