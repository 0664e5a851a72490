package sweep

import (
	"sort"
	"sync"
	"time"
)

// Entry is one successful evaluation kept for the run's ranked summary.
type Entry struct {
	Index     int64
	Constants string
	Score     float64
	Duration  time.Duration
}

// leaderboard keeps the top-K scores seen so far. K is small, so a sorted
// slice under a mutex is plenty.
type leaderboard struct {
	mu   sync.Mutex
	k    int
	best []Entry
}

func newLeaderboard(k int) *leaderboard {
	return &leaderboard{k: k}
}

func (l *leaderboard) offer(e Entry) {
	if l.k <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.best) == l.k && e.Score <= l.best[len(l.best)-1].Score {
		return
	}
	l.best = append(l.best, e)
	sort.Slice(l.best, func(i, j int) bool {
		if l.best[i].Score != l.best[j].Score {
			return l.best[i].Score > l.best[j].Score
		}
		return l.best[i].Index < l.best[j].Index
	})
	if len(l.best) > l.k {
		l.best = l.best[:l.k]
	}
}

func (l *leaderboard) entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.best))
	copy(out, l.best)
	return out
}
