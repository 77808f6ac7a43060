package probe

import (
	"sync"

	"github.com/FairForge/boutiqueload/internal/metrics"
	"github.com/FairForge/boutiqueload/internal/scenario"
)

// CheckCount is the tally of one named check.
type CheckCount struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// CheckSet tallies named checks and feeds the checks rate.
type CheckSet struct {
	mu     sync.Mutex
	order  []string
	counts map[string]*CheckCount
	rate   *metrics.Rate
	prom   *metrics.PromCollector
}

// NewCheckSet creates a check set recording into reg. prom may be nil.
func NewCheckSet(reg *metrics.Registry, prom *metrics.PromCollector) *CheckSet {
	return &CheckSet{
		counts: make(map[string]*CheckCount),
		rate:   reg.Rate(metrics.Checks),
		prom:   prom,
	}
}

// Record counts one evaluation of a check.
func (cs *CheckSet) Record(name string, passed bool) {
	cs.mu.Lock()
	c, ok := cs.counts[name]
	if !ok {
		c = &CheckCount{Name: name}
		cs.counts[name] = c
		cs.order = append(cs.order, name)
	}
	if passed {
		c.Passes++
	} else {
		c.Fails++
	}
	cs.mu.Unlock()

	cs.rate.Add(passed)
	cs.prom.RecordCheck(name, passed)
}

// Evaluate runs every check against resp and records each result. It returns
// true only when all checks passed.
func (cs *CheckSet) Evaluate(checks []scenario.Check, resp *Response) bool {
	all := true
	for _, c := range checks {
		passed := c.Evaluate(resp.Status, resp.Body)
		cs.Record(c.Name, passed)
		all = all && passed
	}
	return all
}

// Counts returns the tallies in first-seen order.
func (cs *CheckSet) Counts() []CheckCount {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	out := make([]CheckCount, 0, len(cs.order))
	for _, name := range cs.order {
		out = append(out, *cs.counts[name])
	}
	return out
}
