package document

import (
	"testing"
	"time"

	"docworker/internal/util"

	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func threeSegmentDoc() *Document {
	return FromChunks("plan", "abc", []util.Chunk{
		{Text: "first block", TokenCount: 2},
		{Text: "second block", TokenCount: 2},
		{Text: "third block", TokenCount: 2},
	})
}

func TestAddSegmentNaming(t *testing.T) {
	d := threeSegmentDoc()
	require.Equal(t, []int{1, 2, 3}, d.SegmentIDs())
	require.Equal(t, "Block 3", d.Segments[2].Name)
	require.Equal(t, "3", d.Segments[2].Suffix())
	require.Equal(t, 6, d.DocTokens())

	odd := &Segment{TextRecord: TextRecord{Name: "Intro"}}
	require.Equal(t, "0", odd.Suffix())
}

func TestCompletionNaming(t *testing.T) {
	d := threeSegmentDoc()
	run := d.NewRunRecord(0, t0)

	a := run.AddNewCompletion([]int{2}, "a", 1, 1)
	b := run.AddNewCompletion([]int{2}, "b", 1, 1)
	require.Equal(t, "Generated 2.1", a.Name)
	require.Equal(t, "Generated 2.2", b.Name)

	c := run.AddNewCompletion([]int{a.ID, b.ID}, "c", 1, 1)
	e := run.AddNewCompletion([]int{1, 3}, "e", 1, 1)
	require.Equal(t, "Generated 1", c.Name)
	require.Equal(t, "Generated 2", e.Name)

	f := run.AddNewCompletion([]int{c.ID}, "f", 1, 1)
	require.Equal(t, "Generated 3", f.Name)

	require.Equal(t, 4, a.ID)
	require.Equal(t, 8, f.ID)
	require.Equal(t, c, run.ItemByName("Generated 1"))
	require.Nil(t, run.Item(99))
	require.Nil(t, run.ItemByName("missing"))
}

func TestRunRecordAddNewSegment(t *testing.T) {
	run := &RunRecord{RunID: 1}
	s1 := run.AddNewSegment("x", 1)
	s2 := run.AddNewSegment("y", 1)
	require.Equal(t, "Block 1", s1.Name)
	require.Equal(t, "Block 2", s2.Name)
	require.Equal(t, 2, s2.ID)
	require.Equal(t, 3, run.NextTextID)
}

func buildTree(t *testing.T) (*Document, *RunRecord) {
	t.Helper()
	d := threeSegmentDoc()
	run := d.NewRunRecord(0, t0)
	g1 := run.AddNewCompletion([]int{1, 2}, "g1", 1, 5)
	g2 := run.AddNewCompletion([]int{3}, "g2", 1, 5)
	final := run.AddNewCompletion([]int{g1.ID, g2.ID}, "final", 1, 5)
	run.SetFinalResult(final)
	return d, run
}

func TestCompletionFamily(t *testing.T) {
	_, run := buildTree(t)
	depth, fam := run.CompletionFamily(0)
	require.Equal(t, 3, depth)
	names := make([]string, 0, len(fam))
	depths := make([]int, 0, len(fam))
	for _, e := range fam {
		names = append(names, e.Item.Record().Name)
		depths = append(depths, e.Depth)
	}
	require.Equal(t, []string{"Generated 2", "Generated 1", "Block 1", "Block 2", "Generated 3.1", "Block 3"}, names)
	require.Equal(t, []int{1, 2, 3, 3, 2, 3}, depths)

	depth, fam = run.CompletionFamily(1)
	require.Equal(t, 0, depth)
	require.Nil(t, fam)

	depth, fam = run.CompletionFamily(42)
	require.Equal(t, 0, depth)
	require.Nil(t, fam)
}

func TestOrderedItems(t *testing.T) {
	_, run := buildTree(t)
	items := run.OrderedItems()
	names := make([]string, 0, len(items))
	for _, it := range items {
		names = append(names, it.Record().Name)
	}
	require.Equal(t, []string{"Generated 2", "Generated 1", "Generated 3.1", "Block 1", "Block 2", "Block 3"}, names)

	empty := threeSegmentDoc().NewRunRecord(0, t0)
	require.Len(t, empty.OrderedItems(), 3)
}

func TestGenItems(t *testing.T) {
	_, run := buildTree(t)
	names := []string{}
	for _, it := range run.GenItems() {
		names = append(names, it.Record().Name)
	}
	require.Equal(t, []string{"Block 1", "Block 2", "Generated 1", "Block 3", "Generated 3.1", "Generated 2"}, names)
}

func TestExport(t *testing.T) {
	_, run := buildTree(t)
	require.Equal(t, "final\n\nfirst block", run.Export([]string{"Generated 2", "nope", "Block 1"}))
	require.Equal(t, 15, run.TokenCost())
}

func TestStartRunDefaultsToSegments(t *testing.T) {
	d := threeSegmentDoc()
	run, err := d.StartRun(0, nil, t0)
	require.NoError(t, err)
	require.Equal(t, 1, run.RunID)
	require.Equal(t, StartMessage, run.StatusMessage)
	require.Equal(t, []int{1, 2, 3}, d.State.ToRun)
	require.Equal(t, []int{1, 2, 3}, d.State.SourceItems)
	require.Equal(t, 6, d.RunInputTokens())
	require.True(t, d.IsRunning(0, t0.Add(time.Minute)))
	require.False(t, d.IsRunning(0, t0.Add(RunCeiling+time.Second)))

	_, err = d.StartRun(0, nil, t0.Add(time.Minute))
	require.ErrorIs(t, err, util.ErrRunInProgress)
}

func TestStartRunImportsPriorCompletions(t *testing.T) {
	d, prior := buildTree(t)
	prior.StopTime = &t0
	final := prior.Result()

	run, err := d.StartRun(3, []int{final.ID, 77}, t0.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, run.RunID)
	require.Equal(t, []int{final.ID}, d.State.ToRun)
	require.Empty(t, d.State.SourceItems)
	require.True(t, d.State.SkipRemaining())

	require.Len(t, run.Completions, 3)
	for _, c := range run.Completions {
		require.False(t, c.IsFinalResult)
		for _, in := range c.InputIDs {
			require.NotNil(t, run.Item(in))
		}
	}
	require.Greater(t, run.NextTextID, final.ID)

	next := run.AddNewCompletion([]int{final.ID}, "again", 1, 1)
	require.Equal(t, "Generated 3", next.Name)
}

func TestCancelAndCompleteRun(t *testing.T) {
	d := threeSegmentDoc()
	run, err := d.StartRun(0, nil, t0)
	require.NoError(t, err)
	d.CancelRun("Insufficient tokens", t0.Add(time.Second))
	require.True(t, run.Stopped())
	require.Empty(t, d.State.ToRun)
	require.Equal(t, "Insufficient tokens", d.StatusMessage(run.RunID))
	require.False(t, d.IsRunning(run.RunID, t0.Add(2*time.Second)))

	d2, run2 := buildTree(t)
	require.Error(t, d2.CompleteRun(run2, 99, t0))
	require.NoError(t, d2.CompleteRun(run2, run2.ResultID, t0))
	require.Equal(t, "", run2.StatusMessage)
}
