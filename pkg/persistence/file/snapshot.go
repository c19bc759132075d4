package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// SnapshotRepository stores each suspension snapshot as
// <root>/snapshots/<execution-id>.json. Claims are settled with exclusive
// claim files: O_EXCL creation succeeds for exactly one claimer.
type SnapshotRepository struct {
	root string
}

func NewSnapshotRepository(root string) *SnapshotRepository {
	return &SnapshotRepository{root: root}
}

// SaveSnapshot writes the snapshot to the filesystem.
func (sr *SnapshotRepository) SaveSnapshot(_ context.Context, snapshot *models.ExecutionSnapshot) error {
	dir := path.Join(sr.root, "snapshots")

	err := os.MkdirAll(dir, 0750)
	if err != nil {
		return fmt.Errorf("failed to create snapshots directory: %w", err)
	}

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot %s: %w", snapshot.ExecutionID, err)
	}

	return os.WriteFile(path.Join(dir, snapshot.ExecutionID+".json"), data, 0600)
}

// SnapshotByExecutionID retrieves the snapshot for an execution.
func (sr *SnapshotRepository) SnapshotByExecutionID(_ context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	filePath := filepath.Clean(path.Join(sr.root, "snapshots", executionID+".json"))

	body, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewExecutionError("SnapshotByExecutionID", executionID, persistence.ErrSnapshotNotFound)
		}

		return nil, fmt.Errorf("failed to fetch snapshot %s: %w", executionID, err)
	}

	var snapshot models.ExecutionSnapshot

	err = json.Unmarshal(body, &snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot %s: %w", executionID, err)
	}

	return &snapshot, nil
}

// ClaimSnapshot atomically claims the snapshot for one resumer. The claim is
// an O_EXCL file next to the snapshot; the filesystem guarantees a single
// winner even across processes sharing the root directory.
func (sr *SnapshotRepository) ClaimSnapshot(ctx context.Context, executionID, claimedBy string) (*models.ExecutionSnapshot, error) {
	snapshot, err := sr.SnapshotByExecutionID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	claimPath := filepath.Clean(path.Join(sr.root, "snapshots", executionID+".claim"))

	claimFile, err := os.OpenFile(claimPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if os.IsExist(err) {
			return nil, persistence.NewExecutionError("ClaimSnapshot", executionID, persistence.ErrSnapshotAlreadyClaimed)
		}

		return nil, fmt.Errorf("failed to create claim file for %s: %w", executionID, err)
	}

	_, err = claimFile.WriteString(claimedBy)
	if closeErr := claimFile.Close(); err == nil {
		err = closeErr
	}

	if err != nil {
		return nil, fmt.Errorf("failed to write claim file for %s: %w", executionID, err)
	}

	snapshot.ClaimedBy = claimedBy

	return snapshot, nil
}

// DeleteSnapshot removes the snapshot and its claim file, if present.
func (sr *SnapshotRepository) DeleteSnapshot(_ context.Context, executionID string) error {
	dir := path.Join(sr.root, "snapshots")

	err := os.Remove(path.Join(dir, executionID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot %s: %w", executionID, err)
	}

	err = os.Remove(path.Join(dir, executionID+".claim"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete snapshot claim %s: %w", executionID, err)
	}

	return nil
}
