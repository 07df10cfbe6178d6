package agent

import (
	"fmt"
	"strconv"
	"strings"
)

// Docker accounts CPU quota in microseconds per 100ms scheduling period.
const cpuQuotaPeriod = 100_000

// memoryBytes converts a human-readable memory limit ("2g", "512m", "1024k",
// or raw bytes) to the byte count the Docker API wants. Empty and "0" disable
// the limit; negative limits are rejected.
func memoryBytes(limit string) (int64, error) {
	s := strings.TrimSpace(strings.ToLower(limit))
	if s == "" || s == "0" {
		return 0, nil
	}

	mult := int64(1)
	switch {
	case strings.HasSuffix(s, "g"):
		mult, s = 1<<30, strings.TrimSuffix(s, "g")
	case strings.HasSuffix(s, "m"):
		mult, s = 1<<20, strings.TrimSuffix(s, "m")
	case strings.HasSuffix(s, "k"):
		mult, s = 1<<10, strings.TrimSuffix(s, "k")
	}

	val, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("agent: memory limit %q: %w", limit, err)
	}
	if val < 0 {
		return 0, fmt.Errorf("agent: memory limit %q is negative", limit)
	}

	return val * mult, nil
}

// cpuQuota converts a fractional CPU count ("2", "0.5") to a Docker CPU quota
// in microseconds. Empty and "0" disable the limit; negative limits are
// rejected.
func cpuQuota(limit string) (int64, error) {
	s := strings.TrimSpace(limit)
	if s == "" || s == "0" {
		return 0, nil
	}

	cpus, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("agent: cpu limit %q: %w", limit, err)
	}
	if cpus < 0 {
		return 0, fmt.Errorf("agent: cpu limit %q is negative", limit)
	}

	return int64(cpus * cpuQuotaPeriod), nil
}
