package pipeline

import "sync"

// Run stages reported through a ProgressFunc.
const (
	StageListing   = "listing"
	StageFetching  = "fetching"
	StageSelecting = "selecting"
	StageAnalyzing = "analyzing"
	StageStoring   = "storing"
)

// Event reports the progress of a run.
type Event struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	// Done and Total count messages during StageFetching.
	Done  int `json:"done,omitempty"`
	Total int `json:"total,omitempty"`
}

// ProgressFunc receives run events. Calls are serialized.
type ProgressFunc func(Event)

// progress serializes calls to a possibly nil ProgressFunc.
type progress struct {
	mu      sync.Mutex
	fn      ProgressFunc
	runID   string
	fetched int
}

func (p *progress) emit(stage string, done, total int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fn(Event{RunID: p.runID, Stage: stage, Done: done, Total: total})
}

// fetchDone counts one finished fetch and reports the new count. Counting
// under the lock keeps Done strictly increasing across events.
func (p *progress) fetchDone(total int) {
	if p == nil || p.fn == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fetched++
	p.fn(Event{RunID: p.runID, Stage: StageFetching, Done: p.fetched, Total: total})
}
