package loadtest

import (
	"time"

	"github.com/FairForge/boutiqueload/internal/scenario"
)

// TargetAt returns the virtual-user target at elapsed time t. Within a stage
// the target moves linearly from the previous stage's target (startVUs for the
// first stage) to the stage's own target, truncated toward the previous value.
// Past the last stage the final target holds.
func TargetAt(stages []scenario.Stage, startVUs int, t time.Duration) int {
	if t < 0 {
		t = 0
	}
	from := startVUs
	var offset time.Duration
	for _, st := range stages {
		end := offset + st.Duration
		if t < end {
			progress := int64(t - offset)
			delta := int64(st.Target-from) * progress / int64(st.Duration)
			return from + int(delta)
		}
		from = st.Target
		offset = end
	}
	return from
}
