package grid

import (
	"fmt"

	"github.com/signalsfoundry/gridsim/model"
)

// Summary renders the one-line numeric digest of a snapshot that downstream
// analysis services consume.
func Summary(s model.GridSnapshot) string {
	out := fmt.Sprintf("Load: %.2fkW, Gen: %.2fkW, Efficiency: %.2f, Leak: %t",
		s.TotalLoad, s.TotalGeneration, s.Efficiency, s.LeakDetected)
	if s.LeakDetected {
		out += " WARNING: LEAK DETECTED."
	}
	return out
}
