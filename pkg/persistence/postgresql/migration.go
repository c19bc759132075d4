package postgresql

// migrations returns the ordered schema migrations. Never edit an applied
// migration; add a new version instead.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS workflows (
				id VARCHAR(255) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL DEFAULT 'draft',
				nodes JSONB NOT NULL DEFAULT '[]',
				connections JSONB NOT NULL DEFAULT '[]',
				variables JSONB,
				metadata JSONB,
				owner VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_workflows_status ON workflows(status) WHERE deleted_at IS NULL;
			CREATE INDEX IF NOT EXISTS idx_workflows_owner ON workflows(owner) WHERE deleted_at IS NULL;
		`,
		2: `
			CREATE TABLE IF NOT EXISTS workflow_executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				status VARCHAR(50) NOT NULL,
				trigger_data JSONB,
				start_time TIMESTAMP WITH TIME ZONE,
				end_time TIMESTAMP WITH TIME ZONE,
				node_executions JSONB NOT NULL DEFAULT '{}',
				execution_sequence JSONB NOT NULL DEFAULT '[]',
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				error TEXT NOT NULL DEFAULT '',
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX IF NOT EXISTS idx_workflow_executions_workflow_id ON workflow_executions(workflow_id);
			CREATE INDEX IF NOT EXISTS idx_workflow_executions_status ON workflow_executions(status);
		`,
		3: `
			CREATE TABLE IF NOT EXISTS execution_snapshots (
				execution_id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				waiting_node_id VARCHAR(255) NOT NULL,
				prompt JSONB,
				pending_inputs JSONB NOT NULL DEFAULT '{}',
				execution_sequence JSONB NOT NULL DEFAULT '[]',
				trigger_data JSONB,
				suspended_at TIMESTAMP WITH TIME ZONE NOT NULL,
				claimed_by VARCHAR(255),
				claimed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX IF NOT EXISTS idx_execution_snapshots_workflow_id ON execution_snapshots(workflow_id);
		`,
	}
}
