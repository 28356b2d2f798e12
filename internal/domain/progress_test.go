package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_UpdatePercentage(t *testing.T) {
	t.Parallel()

	t.Run("from chunks", func(t *testing.T) {
		t.Parallel()

		p := Progress{TotalChunks: 200, CompletedChunks: 50}
		p.UpdatePercentage()
		assert.InDelta(t, 25.0, p.Percentage, 0.001)
	})

	t.Run("falls back to chapters", func(t *testing.T) {
		t.Parallel()

		p := Progress{TotalChapters: 10, CompletedChapters: 4}
		p.UpdatePercentage()
		assert.InDelta(t, 40.0, p.Percentage, 0.001)
	})

	t.Run("no totals", func(t *testing.T) {
		t.Parallel()

		p := Progress{}
		p.UpdatePercentage()
		assert.Zero(t, p.Percentage)
	})
}

func TestProgress_UpdateETA(t *testing.T) {
	t.Parallel()

	t.Run("half done in a minute", func(t *testing.T) {
		t.Parallel()

		p := Progress{TotalChunks: 100, CompletedChunks: 50}
		p.UpdateETA(time.Minute)

		require.NotNil(t, p.ETASeconds)
		assert.InDelta(t, 60.0, *p.ETASeconds, 0.5)
		assert.InDelta(t, 50.0/60.0, p.ChunksPerSecond, 0.01)
	})

	t.Run("nothing done yet", func(t *testing.T) {
		t.Parallel()

		p := Progress{TotalChunks: 100}
		p.UpdateETA(time.Minute)
		assert.Nil(t, p.ETASeconds)
	})
}

func TestProgress_FormatETA(t *testing.T) {
	t.Parallel()

	eta := func(s float64) *float64 { return &s }

	cases := []struct {
		name string
		p    Progress
		want string
	}{
		{"unknown", Progress{}, "calculating"},
		{"seconds", Progress{ETASeconds: eta(42)}, "42s"},
		{"minutes", Progress{ETASeconds: eta(150)}, "2m 30s"},
		{"hours", Progress{ETASeconds: eta(3900)}, "1h 5m"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.p.FormatETA())
		})
	}
}

func TestCheckpoint(t *testing.T) {
	t.Parallel()

	cp := NewCheckpoint()
	assert.Equal(t, CheckpointVersion, cp.Version)
	assert.Equal(t, -1, cp.LastUnit())
	assert.False(t, cp.IsChapterCompleted(0))

	cp.MarkChapterCompleted(2)
	cp.MarkChapterCompleted(0)
	cp.MarkChapterCompleted(2) // idempotent

	assert.True(t, cp.IsChapterCompleted(0))
	assert.True(t, cp.IsChapterCompleted(2))
	assert.False(t, cp.IsChapterCompleted(1))
	assert.Equal(t, 2, cp.LastUnit())
	assert.Len(t, cp.CompletedChapters, 2)

	var nilCP *Checkpoint
	assert.False(t, nilCP.IsChapterCompleted(0))
	assert.Equal(t, -1, nilCP.LastUnit())
}
