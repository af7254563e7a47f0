package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create executions table
			CREATE TABLE executions (
				id VARCHAR(255) PRIMARY KEY,
				pipeline_id VARCHAR(255) NOT NULL,
				stage VARCHAR(100),
				status VARCHAR(50),
				resources JSONB DEFAULT '{}',
				request JSONB DEFAULT '{}',
				state VARCHAR(50) NOT NULL,
				error JSONB,
				wake_at TIMESTAMP WITH TIME ZONE,
				started_at TIMESTAMP WITH TIME ZONE NOT NULL,
				completed_at TIMESTAMP WITH TIME ZONE,
				cancelled_by VARCHAR(255),
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_executions_pipeline_id ON executions(pipeline_id);
			CREATE INDEX idx_executions_state ON executions(state);
			CREATE INDEX idx_executions_wake_at ON executions(wake_at) WHERE state = 'waiting';
			CREATE INDEX idx_executions_created_at ON executions(created_at);
		`,
	}
}
