package syscall

// Stats mirrors the original's syscall_stats_t: running totals plus
// whichever syscall number has been invoked the most.
type Stats struct {
	TotalCalls      uint64
	SuccessfulCalls uint64
	FailedCalls     uint64
	InvalidCalls    uint64
	MostUsedSyscall uint64
	MostUsedCount   uint64
}

var (
	tracing    bool
	callCounts [MaxSyscalls]uint64
	totals     Stats
)

// SetTracing enables or disables per-call trace logging, the Go form of
// the original's infrastructure::set_logging.
func SetTracing(enabled bool) {
	tracing = enabled
}

// Stats returns a snapshot of the call counters accumulated since Init or
// the last ResetStats, including which syscall has been called most.
func Stats() Stats {
	snapshot := totals
	snapshot.MostUsedSyscall, snapshot.MostUsedCount = 0, 0
	for no, count := range callCounts {
		if count > snapshot.MostUsedCount {
			snapshot.MostUsedCount = count
			snapshot.MostUsedSyscall = uint64(no)
		}
	}
	return snapshot
}

// ResetStats zeroes every counter.
func ResetStats() {
	resetStatsLocked()
}

func resetStatsLocked() {
	totals = Stats{}
	callCounts = [MaxSyscalls]uint64{}
}

func recordCall(no uint64) {
	totals.TotalCalls++
	if no < MaxSyscalls {
		callCounts[no]++
	}
}

func recordSuccess() { totals.SuccessfulCalls++ }
func recordFailure() { totals.FailedCalls++ }
func recordInvalid() { totals.InvalidCalls++ }
