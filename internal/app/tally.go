package service

import (
	"sync"

	"github.com/okian/podium/internal/domain/model"
)

// tally counts store outcomes across lanes.
type tally struct {
	mu       sync.Mutex
	outcomes map[string]map[string]int64
	users    int64
}

func newTally() *tally {
	return &tally{outcomes: make(map[string]map[string]int64)}
}

func (t *tally) add(store string, outcome model.Outcome) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	byOutcome, ok := t.outcomes[store]
	if !ok {
		byOutcome = make(map[string]int64)
		t.outcomes[store] = byOutcome
	}
	byOutcome[outcome.String()]++
}

// addUser counts a user seen for the first time on the main board.
func (t *tally) addUser() {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.users++
	t.mu.Unlock()
}

func (t *tally) snapshot() (map[string]map[string]int64, int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]map[string]int64, len(t.outcomes))
	for store, byOutcome := range t.outcomes {
		cp := make(map[string]int64, len(byOutcome))
		for k, v := range byOutcome {
			cp[k] = v
		}
		out[store] = cp
	}
	return out, t.users
}
