package episode

import (
	"time"

	"github.com/google/uuid"
)

// Summary is a read-only view of the current episode for diagnostics and
// persistence.
type Summary struct {
	EpisodeID            uuid.UUID `json:"episodeId"`
	Number               int       `json:"number"`
	StartIndex           int       `json:"startIndex"`
	TaskIndex            int       `json:"taskIndex"`
	TaskCount            int       `json:"taskCount"`
	TaskName             string    `json:"taskName"`
	Steps                int       `json:"steps"`
	StepsSinceCheckpoint int       `json:"stepsSinceCheckpoint"`
	TotalReward          float64   `json:"totalReward"`
	Counter              float64   `json:"counter"`
	DecayRate            float64   `json:"decayRate"`
	AverageReward        float64   `json:"averageReward"`
	NoveltyScore         float64   `json:"noveltyScore"`
	NoveltyFrames        int       `json:"noveltyFrames"`
	Done                 bool      `json:"done"`
	Truncated            bool      `json:"truncated"`
	Outcome              string    `json:"outcome,omitempty"`
	StartedAt            time.Time `json:"startedAt"`
}

// Snapshot returns the current episode's summary. ok is false before the
// first Reset.
func (d *Driver) Snapshot() (Summary, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.started {
		return Summary{}, false
	}
	return d.summaryLocked(), true
}

func (d *Driver) summaryLocked() Summary {
	return Summary{
		EpisodeID:            d.id,
		Number:               d.number,
		StartIndex:           d.startIdx,
		TaskIndex:            d.seq.Index(),
		TaskCount:            d.seq.Len(),
		TaskName:             d.seq.ActiveName(),
		Steps:                d.steps,
		StepsSinceCheckpoint: d.seq.StepsSinceCheckpoint(),
		TotalReward:          d.total,
		Counter:              d.budget.Counter(),
		DecayRate:            d.budget.DecayRate(),
		AverageReward:        d.budget.Average(),
		NoveltyScore:         d.lastScore,
		NoveltyFrames:        d.detector.Len(),
		Done:                 d.done,
		Truncated:            d.truncated,
		StartedAt:            d.startedAt,
	}
}
