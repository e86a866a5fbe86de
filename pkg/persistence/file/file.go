// Package file provides file-based persistence implementation for approval workflows.
package file

import (
	"context"
	"os"
	"strings"
	"sync"

	"github.com/cmsflow/approvals/pkg/models"
	"github.com/cmsflow/approvals/pkg/persistence"
)

// Persistence implements the persistence.Persistence interface using the file system.
// Transactions are serialized by a single writer lock.
type Persistence struct {
	root   string
	mu     sync.RWMutex
	disk   *diskStore
	shared *lockedStore
}

// NewPersistence creates a new instance of Persistence with the specified root directory.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	p := &Persistence{
		root: cleanRoot,
		disk: &diskStore{root: cleanRoot},
	}
	p.shared = &lockedStore{mu: &p.mu, disk: p.disk}

	return p
}

// Close performs any necessary cleanup. For file-based persistence, there is nothing to clean up.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck checks if the file persistence layer is healthy by verifying the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return &WorkflowRepository{store: fp.shared}
}

func (fp *Persistence) InstanceRepository() persistence.InstanceRepository {
	return &InstanceRepository{store: fp.shared}
}

func (fp *Persistence) TaskRepository() persistence.TaskRepository {
	return &TaskRepository{store: fp.shared}
}

func (fp *Persistence) HistoryRepository() persistence.HistoryRepository {
	return &HistoryRepository{store: fp.shared}
}

// Transaction holds the writer lock while fn runs. Writes become visible only
// when fn succeeds.
func (fp *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	staged := newStagedStore(fp.disk)

	err := fn(ctx, &transaction{store: staged})
	if err != nil {
		return err
	}

	return staged.commit()
}

type transaction struct {
	store *stagedStore
}

func (t *transaction) Workflows() persistence.WorkflowRepository {
	return &WorkflowRepository{store: t.store}
}

func (t *transaction) Instances() persistence.InstanceRepository {
	return &InstanceRepository{store: t.store}
}

func (t *transaction) Tasks() persistence.TaskRepository {
	return &TaskRepository{store: t.store}
}

func (t *transaction) History() persistence.HistoryRepository {
	return &HistoryRepository{store: t.store}
}

// LockInstance reads the instance; the writer lock is already held.
func (t *transaction) LockInstance(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	return t.Instances().GetByID(ctx, id)
}
