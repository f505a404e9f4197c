package services

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"deskbridge/internal/models"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

const MB = 1024 * 1024

// Placeholders reported when the OS does not give us a value
const (
	UnknownCPU      = "Unknown CPU"
	UnknownHostname = "Unknown"
	UnknownOS       = "Unknown"
)

// HostProbe reads raw facts from the operating system
type HostProbe interface {
	CPUModel(ctx context.Context) (string, error)
	LogicalCores(ctx context.Context) (int, error)
	// Memory returns total and free physical memory in bytes
	Memory(ctx context.Context) (total, free uint64, err error)
	// Host returns the OS platform name, its version and the hostname
	Host(ctx context.Context) (platform, version, hostname string, err error)
}

// GopsutilProbe is the HostProbe backed by gopsutil
type GopsutilProbe struct{}

func (GopsutilProbe) CPUModel(ctx context.Context) (string, error) {
	infos, err := cpu.InfoWithContext(ctx)
	if err != nil {
		return "", err
	}
	if len(infos) == 0 {
		return "", nil
	}
	return strings.TrimSpace(infos[0].ModelName), nil
}

func (GopsutilProbe) LogicalCores(ctx context.Context) (int, error) {
	return cpu.CountsWithContext(ctx, true)
}

func (GopsutilProbe) Memory(ctx context.Context) (uint64, uint64, error) {
	virtualMemory, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, 0, err
	}
	return virtualMemory.Total, virtualMemory.Free, nil
}

func (GopsutilProbe) Host(ctx context.Context) (string, string, string, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return "", "", "", err
	}
	return info.Platform, info.PlatformVersion, info.Hostname, nil
}

// HardwareService answers get_hardware_info
type HardwareService struct {
	probe  HostProbe
	cache  *FactsCache
	logger *zap.Logger
}

// NewHardwareService creates the service. cache may be nil to disable caching.
func NewHardwareService(probe HostProbe, cache *FactsCache, logger *zap.Logger) *HardwareService {
	if probe == nil {
		probe = GopsutilProbe{}
	}
	return &HardwareService{
		probe:  probe,
		cache:  cache,
		logger: logger.Named("hardware"),
	}
}

// GetHardwareInfo returns a fresh snapshot of the host. Values the OS does not
// provide are replaced with placeholders; probe failures are logged, never returned.
func (s *HardwareService) GetHardwareInfo(ctx context.Context) (*models.HardwareInfo, error) {
	facts, ok := s.cache.Get()
	if !ok {
		facts = s.collectFacts(ctx)
		s.cache.Set(facts)
	}

	total, free, err := s.probe.Memory(ctx)
	if err != nil {
		s.logger.Warn("could not read memory counters", zap.Error(err))
		total, free = 0, 0
	}
	if free > total {
		free = total
	}

	return &models.HardwareInfo{
		CPU:             facts.CPU,
		MemoryTotal:     total / MB,
		MemoryFree:      free / MB,
		OperatingSystem: facts.OperatingSystem,
		Hostname:        facts.Hostname,
		Cores:           facts.Cores,
	}, nil
}

func (s *HardwareService) collectFacts(ctx context.Context) models.HostFacts {
	facts := models.HostFacts{
		CPU:             UnknownCPU,
		Cores:           runtime.NumCPU(),
		OperatingSystem: UnknownOS,
		Hostname:        UnknownHostname,
	}

	if model, err := s.probe.CPUModel(ctx); err != nil {
		s.logger.Warn("could not read CPU model", zap.Error(err))
	} else if model != "" {
		facts.CPU = model
	}

	if cores, err := s.probe.LogicalCores(ctx); err != nil {
		s.logger.Warn("could not read CPU core count", zap.Error(err))
	} else if cores > 0 {
		facts.Cores = cores
	}
	if facts.Cores < 1 {
		facts.Cores = 1
	}

	platform, version, hostname, err := s.probe.Host(ctx)
	if err != nil {
		s.logger.Warn("could not read host info", zap.Error(err))
		hostname, _ = os.Hostname()
	}
	if osName := strings.TrimSpace(fmt.Sprintf("%s %s", platform, version)); osName != "" {
		facts.OperatingSystem = osName
	}
	if hostname = strings.TrimSpace(hostname); hostname != "" {
		facts.Hostname = hostname
	}

	return facts
}
