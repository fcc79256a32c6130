package model

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatsAdd(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.Add(StatusAnalyzed, true, "Modern")
	s.Add(StatusAnalyzed, false, "Legacy")
	s.Add(StatusAnalyzed, false, "")
	s.Add(StatusUnreachable, false, "")
	s.Add(StatusError, false, "")
	s.Add(StatusPending, false, "") // pending rows are never counted

	snap := s.Snapshot()
	assert.Equal(t, 1, snap.Qualified)
	assert.Equal(t, 2, snap.NotQualified)
	assert.Equal(t, 1, snap.Unreachable)
	assert.Equal(t, 1, snap.Errors)
	assert.Equal(t, map[string]int{"Modern": 1, "Legacy": 1}, snap.Styles)
}

func TestStatsConcurrentAdd(t *testing.T) {
	t.Parallel()

	s := NewStats()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Add(StatusAnalyzed, true, "Mixed")
		}()
	}
	wg.Wait()

	snap := s.Snapshot()
	assert.Equal(t, 50, snap.Qualified)
	assert.Equal(t, 50, snap.Styles["Mixed"])
}

func TestSnapshotIsACopy(t *testing.T) {
	t.Parallel()

	s := NewStats()
	s.Add(StatusAnalyzed, true, "Modern")

	snap := s.Snapshot()
	snap.Styles["Modern"] = 99

	assert.Equal(t, 1, s.Snapshot().Styles["Modern"])
}
