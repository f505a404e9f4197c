package models

// ProcessStatus is the synthetic payload published by the process monitor.
// It does not describe any real OS process.
type ProcessStatus struct {
	ID          int     `json:"id"`
	MemoryUsage int     `json:"memory_usage"`
	CPUUsage    float64 `json:"cpu_usage"`
	Timestamp   int64   `json:"timestamp"` // epoch milliseconds
}

// MonitorHandle identifies a running process monitor so it can be stopped early
type MonitorHandle struct {
	MonitorID  string `json:"monitor_id"`
	Iterations int    `json:"iterations"`
	IntervalMS int64  `json:"interval_ms"`
}

// StopMonitorRequest carries the arguments of the stop_process_monitoring command
type StopMonitorRequest struct {
	MonitorID string `json:"monitor_id" binding:"required"`
}
