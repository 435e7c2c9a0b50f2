package task

import "math"

// Progress holds the counters shown above a task list.
type Progress struct {
	Total   int `json:"total"`
	Done    int `json:"done"`
	Pending int `json:"pending"`
	Percent int `json:"percent"`
	// StageUnits and StageTotal are only populated for the three-stage variant.
	StageUnits int  `json:"stage_units,omitempty"`
	StageTotal int  `json:"stage_total,omitempty"`
	Win        bool `json:"win"`
}

// Summarize computes progress over tasks. Callers pass the filtered set,
// so filters change the denominator.
func Summarize(tasks []Task, v Variant) Progress {
	p := Progress{Total: len(tasks)}

	if v == VariantThreeStage {
		p.StageTotal = 3 * p.Total
		for _, t := range tasks {
			p.StageUnits += t.StagesDone()
			if t.FullyDone() {
				p.Done++
			}
		}
		p.Percent = percent(p.StageUnits, p.StageTotal)
	} else {
		for _, t := range tasks {
			if IsDoneValue(t.StatusRaw) {
				p.Done++
			}
		}
		p.Percent = percent(p.Done, p.Total)
	}

	p.Pending = p.Total - p.Done
	p.Win = p.Percent == 100
	return p
}

// DashOffset is the stroke offset of the progress ring (100 - percent).
func (p Progress) DashOffset() int {
	return 100 - p.Percent
}

func percent(n, d int) int {
	if d == 0 {
		return 0
	}
	pct := int(math.Floor(100*float64(n)/float64(d) + 0.5))
	// 100% is reserved for a fully complete set; large sets can otherwise
	// round 99.5+ up.
	if pct == 100 && n < d {
		return 99
	}
	return pct
}
