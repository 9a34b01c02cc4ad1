package domain

import "time"

// ObfuscationJob is a set of independent statements applied to one database.
// Statements may run on different connections concurrently, so none of them
// may depend on another having been applied first.
type ObfuscationJob struct {
	Statements  []string
	Endpoint    Endpoint
	Workers     int
	PortTimeout time.Duration
}

type ObfuscationResult struct {
	Executed int
	Failed   int
	Workers  int
	Duration time.Duration
}

// Report summarises one pipeline run for notifications and the CLI.
type Report struct {
	RunID      string
	Job        string
	Backup     BackupDescriptor
	Result     ObfuscationResult
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

func (r Report) Success() bool {
	return r.Err == nil
}
