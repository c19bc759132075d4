package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/weftworks/weft/pkg/models"
	"github.com/weftworks/weft/pkg/persistence"
)

// SnapshotRepository stores suspension snapshots. Claims are settled with a
// conditional UPDATE on claimed_by, so the database picks a single winner.
type SnapshotRepository struct {
	db *sql.DB
}

func NewSnapshotRepository(db *sql.DB) *SnapshotRepository {
	return &SnapshotRepository{db: db}
}

// SaveSnapshot upserts the snapshot, resetting any stale claim.
func (sr *SnapshotRepository) SaveSnapshot(ctx context.Context, snapshot *models.ExecutionSnapshot) error {
	prompt, err := json.Marshal(snapshot.Prompt)
	if err != nil {
		return fmt.Errorf("failed to marshal prompt for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	pendingInputs, err := json.Marshal(snapshot.PendingInputs)
	if err != nil {
		return fmt.Errorf("failed to marshal pending inputs for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	sequence, err := json.Marshal(snapshot.ExecutionSequence)
	if err != nil {
		return fmt.Errorf("failed to marshal execution sequence for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	triggerData, err := json.Marshal(snapshot.TriggerData)
	if err != nil {
		return fmt.Errorf("failed to marshal trigger data for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	query := `
		INSERT INTO execution_snapshots (execution_id, workflow_id, waiting_node_id, prompt,
			pending_inputs, execution_sequence, trigger_data, suspended_at, claimed_by, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, NULL)
		ON CONFLICT (execution_id) DO UPDATE SET
			waiting_node_id = EXCLUDED.waiting_node_id,
			prompt = EXCLUDED.prompt,
			pending_inputs = EXCLUDED.pending_inputs,
			execution_sequence = EXCLUDED.execution_sequence,
			trigger_data = EXCLUDED.trigger_data,
			suspended_at = EXCLUDED.suspended_at,
			claimed_by = NULL,
			claimed_at = NULL
	`

	_, err = sr.db.ExecContext(ctx, query,
		snapshot.ExecutionID, snapshot.WorkflowID, snapshot.WaitingNodeID,
		prompt, pendingInputs, sequence, triggerData, snapshot.SuspendedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveSnapshot", snapshot.ExecutionID, err)
	}

	return nil
}

// SnapshotByExecutionID returns the snapshot for an execution.
func (sr *SnapshotRepository) SnapshotByExecutionID(ctx context.Context, executionID string) (*models.ExecutionSnapshot, error) {
	query := `
		SELECT execution_id, workflow_id, waiting_node_id, prompt, pending_inputs,
			execution_sequence, trigger_data, suspended_at, claimed_by
		FROM execution_snapshots WHERE execution_id = $1
	`

	snapshot, err := scanSnapshot(sr.db.QueryRowContext(ctx, query, executionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("SnapshotByExecutionID", executionID, persistence.ErrSnapshotNotFound)
		}

		return nil, err
	}

	return snapshot, nil
}

// ClaimSnapshot atomically claims the snapshot: the conditional UPDATE only
// matches an unclaimed row, so concurrent resumers race on one row update and
// exactly one sees RowsAffected == 1.
func (sr *SnapshotRepository) ClaimSnapshot(ctx context.Context, executionID, claimedBy string) (*models.ExecutionSnapshot, error) {
	query := `
		UPDATE execution_snapshots
		SET claimed_by = $1, claimed_at = NOW()
		WHERE execution_id = $2 AND claimed_by IS NULL
	`

	result, err := sr.db.ExecContext(ctx, query, claimedBy, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("ClaimSnapshot", executionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("failed to read claim result for %s: %w", executionID, err)
	}

	if affected == 0 {
		// Either the snapshot does not exist or someone else holds the claim.
		_, err := sr.SnapshotByExecutionID(ctx, executionID)
		if err != nil {
			return nil, err
		}

		return nil, persistence.NewExecutionError("ClaimSnapshot", executionID, persistence.ErrSnapshotAlreadyClaimed)
	}

	return sr.SnapshotByExecutionID(ctx, executionID)
}

// DeleteSnapshot removes the snapshot for an execution.
func (sr *SnapshotRepository) DeleteSnapshot(ctx context.Context, executionID string) error {
	_, err := sr.db.ExecContext(ctx, `DELETE FROM execution_snapshots WHERE execution_id = $1`, executionID)
	if err != nil {
		return persistence.NewExecutionError("DeleteSnapshot", executionID, err)
	}

	return nil
}

func scanSnapshot(row rowScanner) (*models.ExecutionSnapshot, error) {
	var (
		snapshot      models.ExecutionSnapshot
		prompt        []byte
		pendingInputs []byte
		sequence      []byte
		triggerData   []byte
		claimedBy     sql.NullString
	)

	err := row.Scan(
		&snapshot.ExecutionID, &snapshot.WorkflowID, &snapshot.WaitingNodeID,
		&prompt, &pendingInputs, &sequence, &triggerData, &snapshot.SuspendedAt, &claimedBy,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}

		return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
	}

	snapshot.ClaimedBy = claimedBy.String

	if len(prompt) > 0 {
		if err := json.Unmarshal(prompt, &snapshot.Prompt); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prompt for snapshot %s: %w", snapshot.ExecutionID, err)
		}
	}

	if err := json.Unmarshal(pendingInputs, &snapshot.PendingInputs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal pending inputs for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	if err := json.Unmarshal(sequence, &snapshot.ExecutionSequence); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution sequence for snapshot %s: %w", snapshot.ExecutionID, err)
	}

	if len(triggerData) > 0 {
		if err := json.Unmarshal(triggerData, &snapshot.TriggerData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trigger data for snapshot %s: %w", snapshot.ExecutionID, err)
		}
	}

	return &snapshot, nil
}
