package document

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRunStateQueue(t *testing.T) {
	st := NewRunState(1, []int{1, 2, 3}, []int{1, 2, 3})
	require.False(t, st.SkipRemaining())

	id, ok := st.NextItem()
	require.True(t, ok)
	require.Equal(t, 1, id)
	require.Equal(t, 1, st.PopItem())
	require.Equal(t, []int{2, 3}, st.QueuedIDs())

	st.NoteStepComplete(10)
	st.PopItem()
	st.PopItem()
	st.NoteStepComplete(11)
	require.False(t, st.IsLastCompletion())

	res, more := st.NextResultSet()
	require.True(t, more)
	require.Zero(t, res)
	require.Equal(t, []int{10, 11}, st.ToRun)
	require.False(t, st.SkipRemaining())

	st.PopItem()
	st.PopItem()
	require.True(t, st.IsLastCompletion())
	st.NoteStepComplete(12)
	res, more = st.NextResultSet()
	require.False(t, more)
	require.Equal(t, 12, res)
	require.Equal(t, []int{10, 11, 12}, st.CompletedRun)

	_, ok = st.NextItem()
	require.False(t, ok)
	res, more = st.NextResultSet()
	require.False(t, more)
	require.Zero(t, res)
}

func TestRunStateSkipSingleIntermediate(t *testing.T) {
	st := NewRunState(1, []int{9}, nil)
	require.True(t, st.SkipRemaining())

	st = NewRunState(1, []int{4}, []int{4})
	require.False(t, st.SkipRemaining())

	st.Cancel()
	require.Empty(t, st.QueuedIDs())
}
