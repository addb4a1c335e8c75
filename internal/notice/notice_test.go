package notice_test

import (
	"testing"
	"time"

	"github.com/hellof20/mihoyo-cs-tickets/internal/notice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoard_KeyedNoticesDoNotStack(t *testing.T) {
	var b notice.Board
	b.Loading("taskCreation", "Creating task...")
	b.Loading("taskCreation", "Creating task...")

	require.Len(t, b.Notices(), 1)
	assert.Equal(t, notice.LevelLoading, b.Notices()[0].Level)
	assert.Zero(t, b.Notices()[0].Duration)
}

func TestBoard_DestroyThenSuccess(t *testing.T) {
	var b notice.Board
	b.Loading("taskCreation", "Creating task...")
	b.Destroy("taskCreation")
	b.Success("Task created successfully (ID: t1)")

	got := b.Notices()
	require.Len(t, got, 1)
	assert.False(t, b.Has("taskCreation"))
	assert.Equal(t, notice.LevelSuccess, got[0].Level)
	assert.Equal(t, 5*time.Second, got[0].Duration)
	assert.Equal(t, int64(5000), got[0].DurationMillis())
}

func TestBoard_UnkeyedNoticesStack(t *testing.T) {
	var b notice.Board
	b.Error("first")
	b.Error("second")

	assert.Len(t, b.Notices(), 2)
}

func TestBoard_ReplaceKeepsPosition(t *testing.T) {
	var b notice.Board
	b.Show(notice.Notice{Key: "a", Text: "1"})
	b.Show(notice.Notice{Key: "b", Text: "2"})
	b.Show(notice.Notice{Key: "a", Text: "3"})

	got := b.Notices()
	require.Len(t, got, 2)
	assert.Equal(t, "3", got[0].Text)
	assert.Equal(t, "2", got[1].Text)
}
