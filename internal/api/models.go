package api

import (
	"github.com/smolin/procwarden/internal/logging"
)

// HealthData is the health check payload.
type HealthData struct {
	Status    string `json:"status" example:"ok" doc:"API health status"`
	Version   string `json:"version" doc:"Daemon version"`
	GitCommit string `json:"git_commit" doc:"Git commit the daemon was built from"`
	BuildDate string `json:"build_date" doc:"Build timestamp"`
	GoVersion string `json:"go_version" doc:"Go toolchain version"`
	Platform  string `json:"platform" example:"linux/amd64" doc:"Build platform"`
}

// HealthResponse wraps HealthData.
type HealthResponse struct {
	Body HealthData
}

// ExitInfo describes the most recent child termination.
type ExitInfo struct {
	Code     int    `json:"code" doc:"Exit code, 128+signal when signaled"`
	Signaled bool   `json:"signaled" doc:"Whether a signal terminated the child"`
	Signal   string `json:"signal,omitempty" doc:"Terminating signal name"`
	Cause    string `json:"cause" example:"crash" doc:"Termination cause: exit, crash, or signal"`
	At       string `json:"at" doc:"When the exit was observed"`
}

// StatusData is the supervisor status payload.
type StatusData struct {
	App          string    `json:"app" doc:"Supervised application name"`
	Phase        string    `json:"phase" example:"running" doc:"Current lifecycle phase"`
	PID          int       `json:"pid,omitempty" doc:"Child process ID, 0 when no child is running"`
	StartedAt    string    `json:"started_at,omitempty" doc:"Launch time of the current child"`
	UptimeSec    float64   `json:"uptime_sec" doc:"Uptime of the current child in seconds"`
	Launches     int       `json:"launches" doc:"Total launches this supervisor run"`
	RestartCount int       `json:"restart_count" doc:"Automatic relaunches consumed from the budget"`
	MaxRestarts  int       `json:"max_restarts" doc:"Restart budget"`
	AutoRestart  bool      `json:"auto_restart" doc:"Whether crashed children are relaunched"`
	LastExit     *ExitInfo `json:"last_exit,omitempty" doc:"Most recent child termination"`
}

// StatusResponse wraps StatusData.
type StatusResponse struct {
	Body StatusData
}

// ActionData reports the outcome of a control operation.
type ActionData struct {
	Status  string `json:"status" example:"ok" doc:"Operation outcome"`
	Message string `json:"message,omitempty" doc:"Human-readable detail"`
}

// ActionResponse wraps ActionData.
type ActionResponse struct {
	Body ActionData
}

// LogsData carries recent daemon log entries.
type LogsData struct {
	Entries []logging.LogEntry `json:"entries" doc:"Log entries, oldest first"`
	Count   int                `json:"count" doc:"Number of entries returned"`
}

// LogsResponse wraps LogsData.
type LogsResponse struct {
	Body LogsData
}
