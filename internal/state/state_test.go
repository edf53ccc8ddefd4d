package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_StartsRunning(t *testing.T) {
	s := New(1000)
	snap := s.Snapshot()
	assert.Equal(t, StatusRunning, snap.Status)
	assert.False(t, snap.Paused)
	assert.Equal(t, uint64(1000), snap.LastBlock)
	assert.Nil(t, snap.Index)
	assert.Nil(t, snap.PendingReindex)
}

func TestPauseAndResume(t *testing.T) {
	s := New(0)
	s.Pause()
	assert.True(t, s.Paused())
	assert.Equal(t, StatusPaused, s.Snapshot().Status)

	s.Resume()
	assert.False(t, s.Paused())
	assert.Equal(t, StatusRunning, s.Snapshot().Status)
}

func TestResume_ReindexingStatusPreserved(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 10, IsReindex: true})
	s.Pause()
	s.Resume()
	assert.Equal(t, StatusReindexing, s.Snapshot().Status)
}

func TestSubmitReindex_OverwritesAndClearsPause(t *testing.T) {
	s := New(0)
	s.Pause()
	s.SubmitReindex(IndexProgress{From: 10, To: 20})
	assert.False(t, s.Paused())

	s.SubmitReindex(IndexProgress{From: 30, To: 40})
	req := s.TakePendingReindex()
	require.NotNil(t, req)
	assert.Equal(t, uint64(30), req.From)
	assert.Equal(t, uint64(40), req.To)
}

func TestTakePendingReindex_ClearsAfterTake(t *testing.T) {
	s := New(0)
	s.SubmitReindex(IndexProgress{From: 1, To: 2})
	first := s.TakePendingReindex()
	require.NotNil(t, first)
	second := s.TakePendingReindex()
	assert.Nil(t, second)
}

func TestReset_ClearsIndexAndPending(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 10})
	s.SubmitReindex(IndexProgress{From: 1, To: 2})
	s.Pause()

	s.Reset()
	snap := s.Snapshot()
	assert.Nil(t, snap.Index)
	assert.Nil(t, snap.PendingReindex)
	assert.Equal(t, StatusRunning, snap.Status)
	assert.False(t, snap.Paused)
}

func TestUpdateCurrent_NoOpWithoutIndex(t *testing.T) {
	s := New(0)
	s.UpdateCurrent(500)
	assert.Nil(t, s.Snapshot().Index)
}

func TestUpdateCurrent_AdvancesCursor(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 100, Current: 1})
	s.UpdateCurrent(50)
	assert.Equal(t, uint64(50), s.Snapshot().Index.Current)
}

func TestClearIndex_RestoresRunningWhenNotPaused(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 10, IsReindex: true})
	s.ClearIndex()
	snap := s.Snapshot()
	assert.Nil(t, snap.Index)
	assert.Equal(t, StatusRunning, snap.Status)
}

func TestClearIndex_KeepsPausedStatus(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 10})
	s.Pause()
	s.ClearIndex()
	assert.Equal(t, StatusPaused, s.Snapshot().Status)
}

func TestSetHeadAndLastBlock(t *testing.T) {
	s := New(0)
	s.SetHeadAndLastBlock(2500, 2400)
	snap := s.Snapshot()
	assert.Equal(t, uint64(2500), snap.Head)
	assert.Equal(t, uint64(2400), snap.LastBlock)
	assert.Equal(t, uint64(2400), s.LastBlock())
}

func TestSnapshot_IndexIsACopyNotAlias(t *testing.T) {
	s := New(0)
	s.SetIndex(&IndexProgress{From: 1, To: 10, Current: 1})
	snap := s.Snapshot()
	snap.Index.Current = 999
	assert.Equal(t, uint64(1), s.Snapshot().Index.Current)
}
