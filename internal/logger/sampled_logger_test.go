package logger

import (
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSampledLoggerUnconfiguredCategoryAlwaysLogs(t *testing.T) {
	l, buf := newBufferLogger()
	s := NewSampledLogger(NewLogrusAdapter(logrus.NewEntry(l)))

	for i := 0; i < 10; i++ {
		s.InfoWithCategory("other", "line", nil)
	}
	assert.Len(t, decodeLines(t, buf), 10)
	assert.Empty(t, s.Stats())
}

func TestSampledLoggerBurstThenDrop(t *testing.T) {
	l, buf := newBufferLogger()
	s := NewSampledLogger(NewLogrusAdapter(logrus.NewEntry(l))).
		WithSampler(CategoryPresentation, time.Hour, 3)

	for i := 0; i < 10; i++ {
		s.DebugWithCategory(CategoryPresentation, "frame presented", map[string]interface{}{"n": i})
	}

	lines := decodeLines(t, buf)
	require.Len(t, lines, 3)
	for i, line := range lines {
		assert.Equal(t, float64(i), line["n"])
		assert.Equal(t, CategoryPresentation, line["category"])
	}

	stats := s.Stats()[CategoryPresentation]
	assert.Equal(t, int64(10), stats.Seen)
	assert.Equal(t, int64(7), stats.Dropped)
}

func TestSampledLoggerReportsSuppressed(t *testing.T) {
	l, buf := newBufferLogger()
	s := NewSampledLogger(NewLogrusAdapter(logrus.NewEntry(l))).
		WithSampler(CategoryPacing, 20*time.Millisecond, 1)

	s.WarnWithCategory(CategoryPacing, "behind schedule", nil)
	s.WarnWithCategory(CategoryPacing, "behind schedule", nil)
	s.WarnWithCategory(CategoryPacing, "behind schedule", nil)

	time.Sleep(40 * time.Millisecond)
	s.WarnWithCategory(CategoryPacing, "behind schedule", nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 2)
	assert.NotContains(t, lines[0], "suppressed")
	assert.Equal(t, float64(2), lines[1]["suppressed"])
}

func TestSampledLoggerDerivedSharesState(t *testing.T) {
	l, buf := newBufferLogger()
	s := NewSampledLogger(NewLogrusAdapter(logrus.NewEntry(l))).
		WithSampler(CategoryDecode, time.Hour, 1)

	derived, ok := s.WithField("input", "a.h264").(*SampledLogger)
	require.True(t, ok)

	s.InfoWithCategory(CategoryDecode, "first", nil)
	derived.InfoWithCategory(CategoryDecode, "second", nil)

	lines := decodeLines(t, buf)
	require.Len(t, lines, 1)
	assert.Equal(t, "first", lines[0]["msg"])
}

func TestSampledLoggerDoesNotMutateFields(t *testing.T) {
	l, _ := newBufferLogger()
	s := NewSampledLogger(NewLogrusAdapter(logrus.NewEntry(l)))

	fields := map[string]interface{}{"pts": 10}
	s.InfoWithCategory(CategoryPacketWrite, "packet", fields)
	assert.Equal(t, map[string]interface{}{"pts": 10}, fields)
}

func TestNewPlaybackLoggerConcurrent(t *testing.T) {
	s := NewPlaybackLogger(nil)
	assert.Len(t, s.Stats(), 5)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.DebugWithCategory(CategoryInput, "key", nil)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(800), s.Stats()[CategoryInput].Seen)
}
