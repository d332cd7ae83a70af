package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rlviewer/telemetry/internal/job"
)

func TestSnapshot(t *testing.T) {
	jobs := job.NewStore(time.Hour)
	jobs.Create("j1")
	jobs.Create("j2")

	s := NewService(Dependencies{
		Jobs:     jobs,
		QueueLen: func() int { return 3 },
		DataDir:  t.TempDir(),
	}, time.Second)

	st := s.Snapshot()

	assert.Equal(t, 2, st.TrackedJobs)
	assert.Equal(t, 3, st.QueuedJobs)
	assert.Greater(t, st.Goroutines, 0)
	assert.GreaterOrEqual(t, st.UptimeSecs, 0.0)
	assert.False(t, st.Time.IsZero())
}

func TestSnapshot_NilDeps(t *testing.T) {
	s := NewService(Dependencies{DataDir: t.TempDir()}, time.Second)

	st := s.Snapshot()
	assert.Equal(t, 0, st.TrackedJobs)
	assert.Equal(t, 0, st.QueuedJobs)
}

func TestStartWritesStatusFile(t *testing.T) {
	dir := t.TempDir()
	s := NewService(Dependencies{
		Jobs:     job.NewStore(time.Hour),
		QueueLen: func() int { return 0 },
		DataDir:  dir,
	}, 10*time.Millisecond)

	require.NoError(t, s.Start())
	defer s.Stop()

	statusPath := filepath.Join(dir, "status.json")
	require.Eventually(t, func() bool {
		_, err := os.Stat(statusPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	data, err := os.ReadFile(statusPath)
	require.NoError(t, err)

	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.False(t, st.Time.IsZero())
}

func TestStartTwiceIsNoop(t *testing.T) {
	s := NewService(Dependencies{DataDir: t.TempDir()}, time.Hour)

	require.NoError(t, s.Start())
	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())

	s.Stop()
	assert.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)
}
