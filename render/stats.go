package render

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Frame stages timed by FrameStats.
const (
	StageWait    = "wait"
	StageAcquire = "acquire"
	StageRecord  = "record"
	StageSubmit  = "submit"
	StagePresent = "present"
)

// FrameStats collects per-stage timings of the current cycle and counters
// over the renderer's lifetime.
type FrameStats struct {
	stages map[string]time.Duration
	start  time.Time

	Frames        uint64
	DroppedFrames uint64
	Rebuilds      uint64
	Draws         uint64
}

func newFrameStats() *FrameStats {
	return &FrameStats{stages: make(map[string]time.Duration)}
}

// beginFrame clears the per-stage totals of the previous cycle.
func (s *FrameStats) beginFrame() {
	for k := range s.stages {
		delete(s.stages, k)
	}
	s.start = time.Now()
}

// track returns a function which adds the time elapsed since the call to
// the named stage.
//
//	defer s.track(StageRecord)()
func (s *FrameStats) track(stage string) func() {
	start := time.Now()
	return func() {
		s.stages[stage] += time.Since(start)
	}
}

// Elapsed returns the time spent in the current cycle so far.
func (s *FrameStats) Elapsed() time.Duration {
	return time.Since(s.start)
}

// Stage returns the time the current cycle spent in a stage.
func (s *FrameStats) Stage(name string) time.Duration {
	return s.stages[name]
}

// TopN formats the n slowest stages of the cycle, e.g. "wait:4.2ms, record:0.3ms".
func (s *FrameStats) TopN(n int) string {
	type pair struct {
		name string
		dur  time.Duration
	}
	list := make([]pair, 0, len(s.stages))
	for k, v := range s.stages {
		list = append(list, pair{name: k, dur: v})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].dur == list[j].dur {
			return list[i].name < list[j].name
		}
		return list[i].dur > list[j].dur
	})
	if n > len(list) {
		n = len(list)
	}

	parts := make([]string, 0, n)
	for _, p := range list[:n] {
		ms := float64(p.dur.Microseconds()) / 1000.0
		parts = append(parts, fmt.Sprintf("%s:%.1fms", p.name, ms))
	}
	return strings.Join(parts, ", ")
}
