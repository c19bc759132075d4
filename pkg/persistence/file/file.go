// Package file provides file-based persistence. Each entity is one JSON file
// under the root directory; snapshot claims use exclusive claim files so that
// resume races are settled by the filesystem.
package file

import (
	"context"
	"os"
	"strings"

	"github.com/weftworks/weft/pkg/persistence"
)

// Persistence implements persistence.Persistence on the local filesystem.
type Persistence struct {
	root          string
	workflowRepo  *WorkflowRepository
	executionRepo *ExecutionRepository
	snapshotRepo  *SnapshotRepository
}

// NewPersistence creates a file persistence layer rooted at the given
// directory. A "file://" scheme prefix is accepted and stripped.
func NewPersistence(root string) *Persistence {
	cleanRoot := strings.Replace(root, "file://", "", 1)

	return &Persistence{
		root:          cleanRoot,
		workflowRepo:  NewWorkflowRepository(cleanRoot),
		executionRepo: NewExecutionRepository(cleanRoot),
		snapshotRepo:  NewSnapshotRepository(cleanRoot),
	}
}

func (fp *Persistence) WorkflowRepository() persistence.WorkflowRepository {
	return fp.workflowRepo
}

func (fp *Persistence) ExecutionRepository() persistence.ExecutionRepository {
	return fp.executionRepo
}

func (fp *Persistence) SnapshotRepository() persistence.SnapshotRepository {
	return fp.snapshotRepo
}

// HealthCheck verifies the root directory exists.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(fp.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For file persistence there is none.
func (fp *Persistence) Close(_ context.Context) error {
	return nil
}
