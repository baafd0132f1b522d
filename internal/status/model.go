// Package status turns the sensor/process snapshot files written by the
// monitor daemon into a structured SystemStatus and keeps the latest one.
//
// Every field that comes from the text files is a pointer: nil means the
// value was not present in the source text, which is a different observation
// from a present zero. JSON and YAML encodings omit nil fields and keep zeros.
package status

// CpuStat holds the raw per-block tick counters from the CPU file.
// No percentages are derived here.
type CpuStat struct {
	UserNorm *uint64 `json:"user_norm,omitempty" yaml:"user_norm,omitempty"`
	UserNice *uint64 `json:"user_nice,omitempty" yaml:"user_nice,omitempty"`
	Kernel   *uint64 `json:"kernel,omitempty" yaml:"kernel,omitempty"`
	Idle     *uint64 `json:"idle,omitempty" yaml:"idle,omitempty"`
	Iowait   *uint64 `json:"iowait,omitempty" yaml:"iowait,omitempty"`
	Irq      *uint64 `json:"irq,omitempty" yaml:"irq,omitempty"`
	SoftIrq  *uint64 `json:"soft_irq,omitempty" yaml:"soft_irq,omitempty"`
}

// CoreStat is one "Core <n>:" block. The counters are flattened next to
// core_id on the wire.
type CoreStat struct {
	CoreID  uint32 `json:"core_id" yaml:"core_id"`
	CpuStat `yaml:",inline"`
}

// CpuUsage groups the aggregate block and the per-core blocks.
// Cores keeps file order; nil means no core block was seen.
type CpuUsage struct {
	Full  *CpuStat   `json:"full,omitempty" yaml:"full,omitempty"`
	Cores []CoreStat `json:"cores,omitempty" yaml:"cores,omitempty"`
}

// CpuInfo is the parsed CPU file.
type CpuInfo struct {
	// TemperatureCelsius is the "CPU temp" milli-degree value divided by 1000.
	TemperatureCelsius *float64  `json:"cpu_temperature,omitempty" yaml:"cpu_temperature,omitempty"`
	Usage              *CpuUsage `json:"cpu_usage,omitempty" yaml:"cpu_usage,omitempty"`
}

// MemoryInfo is the parsed RAM file. Values are in kB.
type MemoryInfo struct {
	Total     *uint64 `json:"total,omitempty" yaml:"total,omitempty"`
	Free      *uint64 `json:"free,omitempty" yaml:"free,omitempty"`
	Available *uint64 `json:"available,omitempty" yaml:"available,omitempty"`
}

// ProcessInfo is one "Proc:" block from the process file.
// Memory, swap values are in kB; utime is in clock ticks.
type ProcessInfo struct {
	PID              *uint32 `json:"pid,omitempty" yaml:"pid,omitempty"`
	Name             *string `json:"name,omitempty" yaml:"name,omitempty"`
	StateCode        *string `json:"state_code,omitempty" yaml:"state_code,omitempty"`
	StateDescription *string `json:"state_description,omitempty" yaml:"state_description,omitempty"`
	User             *string `json:"user,omitempty" yaml:"user,omitempty"`
	Group            *string `json:"group,omitempty" yaml:"group,omitempty"`
	MemoryRSS        *uint64 `json:"memory_rss,omitempty" yaml:"memory_rss,omitempty"`
	MemoryVirt       *uint64 `json:"memory_virt,omitempty" yaml:"memory_virt,omitempty"`
	Swap             *uint64 `json:"swap,omitempty" yaml:"swap,omitempty"`
	Threads          *uint32 `json:"threads,omitempty" yaml:"threads,omitempty"`
	Utime            *uint64 `json:"utime,omitempty" yaml:"utime,omitempty"`
}

// ProcessesInfo is the parsed process file in file order.
// Duplicate PIDs are kept as they appear.
type ProcessesInfo struct {
	Processes []ProcessInfo `json:"processes" yaml:"processes"`
}

// ExternalTemperature is the parsed thermocouple file, in degrees Celsius.
type ExternalTemperature struct {
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// SystemStatus is one complete snapshot of all status files.
// A snapshot is built whole by one poll cycle and is never modified after
// it is published to a Store.
type SystemStatus struct {
	CPU                 CpuInfo             `json:"cpu" yaml:"cpu"`
	Memory              MemoryInfo          `json:"memory" yaml:"memory"`
	Processes           ProcessesInfo       `json:"processes" yaml:"processes"`
	ExternalTemperature ExternalTemperature `json:"ext_temp" yaml:"ext_temp"`
}

// NewSystemStatus returns the all-absent snapshot used before the first poll.
func NewSystemStatus() SystemStatus {
	return SystemStatus{
		Processes: ProcessesInfo{Processes: []ProcessInfo{}},
	}
}
