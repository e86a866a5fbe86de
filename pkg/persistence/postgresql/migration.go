package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Workflow definitions
			CREATE TABLE workflows (
				id TEXT PRIMARY KEY,
				code VARCHAR(64) NOT NULL,
				name VARCHAR(128) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL CHECK (status IN ('DRAFT', 'ACTIVE', 'INACTIVE')),
				version INTEGER NOT NULL DEFAULT 1,
				created_by TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflows_code_live ON workflows(code) WHERE deleted_at IS NULL;
			CREATE INDEX idx_workflows_status ON workflows(status);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_nodes (
				id TEXT NOT NULL,
				workflow_id TEXT NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				node_type VARCHAR(16) NOT NULL CHECK (node_type IN ('START', 'APPROVAL', 'END')),
				name VARCHAR(128) NOT NULL,
				sort_order INTEGER NOT NULL DEFAULT 0,
				position INTEGER NOT NULL DEFAULT 0,
				approver_ids TEXT[] NOT NULL DEFAULT '{}',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				PRIMARY KEY (workflow_id, id)
			);
		`,
		2: `
			-- Workflow instances and approval tasks
			CREATE TABLE workflow_instances (
				id TEXT PRIMARY KEY,
				workflow_id TEXT NOT NULL REFERENCES workflows(id),
				business_type VARCHAR(64) NOT NULL,
				business_id VARCHAR(128) NOT NULL,
				business_title TEXT NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL CHECK (status IN ('RUNNING', 'APPROVED', 'REJECTED', 'CANCELLED')),
				initiator_id TEXT NOT NULL DEFAULT '',
				initiated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				current_node_id TEXT NOT NULL DEFAULT '',
				completed_at TIMESTAMP WITH TIME ZONE,
				completion_note TEXT NOT NULL DEFAULT '',
				approval_mode VARCHAR(16) NOT NULL DEFAULT '',
				approver_overrides TEXT[] NOT NULL DEFAULT '{}',
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE UNIQUE INDEX idx_workflow_instances_running
				ON workflow_instances(business_type, business_id)
				WHERE status = 'RUNNING' AND deleted_at IS NULL;
			CREATE INDEX idx_workflow_instances_business ON workflow_instances(business_type, business_id);
			CREATE INDEX idx_workflow_instances_created_at ON workflow_instances(created_at);

			CREATE TABLE workflow_tasks (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id),
				node_id TEXT NOT NULL,
				task_name VARCHAR(128) NOT NULL,
				task_type VARCHAR(16) NOT NULL DEFAULT 'APPROVAL',
				assignee_id TEXT NOT NULL,
				assignee_name TEXT NOT NULL DEFAULT '',
				status VARCHAR(16) NOT NULL CHECK (status IN ('PENDING', 'IN_PROGRESS', 'APPROVED', 'REJECTED', 'CANCELLED')),
				action VARCHAR(16) NOT NULL DEFAULT '',
				comment TEXT NOT NULL DEFAULT '',
				processed_at TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL,
				deleted_at TIMESTAMP WITH TIME ZONE
			);

			CREATE INDEX idx_workflow_tasks_instance_node ON workflow_tasks(instance_id, node_id);
			CREATE INDEX idx_workflow_tasks_assignee_status ON workflow_tasks(assignee_id, status);
		`,
		3: `
			-- Approval audit trail
			CREATE TABLE approval_history (
				id TEXT PRIMARY KEY,
				instance_id TEXT NOT NULL REFERENCES workflow_instances(id),
				task_id TEXT NOT NULL,
				node_id TEXT NOT NULL,
				node_name VARCHAR(128) NOT NULL DEFAULT '',
				approver_id TEXT NOT NULL,
				approver_name TEXT NOT NULL DEFAULT '',
				action VARCHAR(16) NOT NULL CHECK (action IN ('APPROVE', 'REJECT')),
				comment TEXT NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_approval_history_instance ON approval_history(instance_id, created_at);
		`,
	}
}
