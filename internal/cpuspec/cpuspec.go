// Package cpuspec inspects the host CPU to pick an inference thread count.
package cpuspec

import (
	"regexp"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"
)

// CPUSpec contains information about CPU specifications
type CPUSpec struct {
	BrandName        string
	LogicalCores     int
	PerformanceCores int // 0 when the CPU is not a known hybrid design
	HasAVX2          bool
}

// hybridCPU maps a brand name pattern to its performance core count.
type hybridCPU struct {
	pattern *regexp.Regexp
	pCores  int
}

// Hybrid CPUs where scheduling inference on efficiency cores hurts latency.
var hybridCPUs = []hybridCPU{
	{regexp.MustCompile(`i9-1[234]900`), 8},
	{regexp.MustCompile(`i7-1[234]700`), 8},
	{regexp.MustCompile(`i5-1[234][56]00`), 6},
	{regexp.MustCompile(`i5-1[234]400`), 6},
	{regexp.MustCompile(`i3-1[234]100`), 4},
	{regexp.MustCompile(`core.*ultra\s+[79]\s+(processor\s+)?2[68]5`), 8},
	{regexp.MustCompile(`core.*ultra\s+5\s+(processor\s+)?2[23]5`), 6},
	{regexp.MustCompile(`apple\s+m[1-4]\s+ultra`), 16},
	{regexp.MustCompile(`apple\s+m[1-4]\s+(pro|max)`), 8},
	{regexp.MustCompile(`apple\s+m[1-4]\b`), 4},
}

// GetCPUSpec returns the host CPU specification.
func GetCPUSpec() CPUSpec {
	return newCPUSpec(cpuid.CPU.BrandName, cpuid.CPU.LogicalCores, cpuid.CPU.Supports(cpuid.AVX2))
}

func newCPUSpec(brand string, logical int, avx2 bool) CPUSpec {
	return CPUSpec{
		BrandName:        brand,
		LogicalCores:     logical,
		PerformanceCores: performanceCores(brand),
		HasAVX2:          avx2,
	}
}

func performanceCores(brand string) int {
	brand = strings.ToLower(brand)
	for _, h := range hybridCPUs {
		if h.pattern.MatchString(brand) {
			return h.pCores
		}
	}
	return 0
}

// GetOptimalThreadCount returns the recommended interpreter thread count,
// never more than the CPUs available to the process.
func (c CPUSpec) GetOptimalThreadCount() int {
	available := runtime.NumCPU()

	switch {
	case c.PerformanceCores > 0:
		return min(c.PerformanceCores, available)
	case c.LogicalCores > 0:
		return min(c.LogicalCores, available)
	default:
		return available
	}
}

// ThreadCount resolves a configured thread count: 0 means auto, and values
// above the available CPUs are clamped.
func ThreadCount(configured int) int {
	available := runtime.NumCPU()
	if configured <= 0 {
		return GetCPUSpec().GetOptimalThreadCount()
	}
	return min(configured, available)
}
