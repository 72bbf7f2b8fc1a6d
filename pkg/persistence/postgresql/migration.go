package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions with their nodes and edges
			CREATE TABLE workflows (
				id VARCHAR(255) PRIMARY KEY,
				tenant_id VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('draft', 'published', 'unpublished')),
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				published_at TIMESTAMP WITH TIME ZONE,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflows_tenant_id ON workflows(tenant_id);
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);
			CREATE INDEX idx_workflows_deleted_at ON workflows(deleted_at);

			CREATE TABLE workflow_nodes (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				node_type VARCHAR(255) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				config JSONB NOT NULL DEFAULT '{}',
				position_x INT NOT NULL DEFAULT 0,
				position_y INT NOT NULL DEFAULT 0,
				sort_order INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE TABLE workflow_edges (
				workflow_id VARCHAR(255) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				id VARCHAR(255) NOT NULL,
				source_node_id VARCHAR(255) NOT NULL,
				target_node_id VARCHAR(255) NOT NULL,
				branch_handle VARCHAR(255) NOT NULL DEFAULT '',
				sort_order INT NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);

			CREATE INDEX idx_workflow_edges_source ON workflow_edges(workflow_id, source_node_id);
		`,
		2: `
			-- Executions outlive their workflow rows, so there is no foreign key
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				workflow_id VARCHAR(255) NOT NULL,
				tenant_id VARCHAR(255) NOT NULL,
				subject_id VARCHAR(255) NOT NULL,
				channel_id VARCHAR(255) NOT NULL DEFAULT '',
				current_node_id VARCHAR(255) NOT NULL DEFAULT '',
				status VARCHAR(50) NOT NULL CHECK (status IN ('pending', 'running', 'completed', 'stopped', 'failed')),
				scheduled_for TIMESTAMP WITH TIME ZONE,
				context_data JSONB,
				claim_token VARCHAR(255) NOT NULL DEFAULT '',
				claim_expires_at TIMESTAMP WITH TIME ZONE,
				error TEXT NOT NULL DEFAULT '',
				steps INT NOT NULL DEFAULT 0,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_executions_due ON executions(status, scheduled_for);
			CREATE INDEX idx_executions_lease ON executions(status, claim_expires_at);
			CREATE INDEX idx_executions_workflow_id ON executions(workflow_id);
			CREATE INDEX idx_executions_subject_id ON executions(subject_id);
		`,
	}
}
