package models

// HardwareInfo is a point-in-time snapshot of the host the backend runs on.
// Memory figures are in megabytes.
type HardwareInfo struct {
	CPU             string `json:"cpu"`
	MemoryTotal     uint64 `json:"memory_total"`
	MemoryFree      uint64 `json:"memory_free"`
	OperatingSystem string `json:"operating_system"`
	Hostname        string `json:"hostname"`
	Cores           int    `json:"cores"`
}

// HostFacts are the parts of HardwareInfo that do not change while the
// process is running
type HostFacts struct {
	CPU             string
	Cores           int
	OperatingSystem string
	Hostname        string
}
