package cooccur

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeBatch(t *testing.T, dir string, arbiter *FileHandleArbiter, cells ...Cell) *Batch {
	t.Helper()
	b, err := NewBatch(dir, arbiter, false)
	require.NoError(t, err)
	for _, c := range cells {
		require.NoError(t, b.WriteCell(c))
	}
	require.NoError(t, b.Finish())
	return b
}

func runMerge(t *testing.T, vocabSize int, cfg MergeConfig, batches ...*Batch) []uint64 {
	t.Helper()
	m := &Merger{Batches: batches, Arbiter: NewFileHandleArbiter(16), Config: cfg}
	pairOcc, err := m.Run(vocabSize)
	require.NoError(t, err)
	return pairOcc
}

func TestMergeSingleBatchPassthrough(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b := makeBatch(t, dir, arbiter,
		Cell{FirstID: 0, Records: []Record{{SecondID: 1, TF: 2, DF: 1}}},
		Cell{FirstID: 1, Records: []Record{{SecondID: 0, TF: 2, DF: 1}}},
	)
	var tfBuf bytes.Buffer
	pairOcc := runMerge(t, 2, MergeConfig{TFWriter: &tfBuf}, b)
	lines := strings.Split(strings.TrimSpace(tfBuf.String()), "\n")
	assert.ElementsMatch(t, []string{"0 1 2", "1 0 2"}, lines)
	assert.EqualValues(t, 2, pairOcc[0])
	assert.EqualValues(t, 2, pairOcc[1])
}

func TestMergeCombinesEqualFirstIDAcrossBatches(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b1 := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{{SecondID: 1, TF: 3, DF: 2}, {SecondID: 2, TF: 1, DF: 1}}})
	b2 := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{{SecondID: 1, TF: 1, DF: 1}, {SecondID: 3, TF: 5, DF: 1}}})

	var tfBuf, dfBuf bytes.Buffer
	pairOcc := runMerge(t, 4, MergeConfig{TFWriter: &tfBuf, DFWriter: &dfBuf}, b1, b2)

	tfLines := strings.Split(strings.TrimSpace(tfBuf.String()), "\n")
	assert.ElementsMatch(t, []string{"0 1 4", "0 2 1", "0 3 5"}, tfLines)
	dfLines := strings.Split(strings.TrimSpace(dfBuf.String()), "\n")
	assert.ElementsMatch(t, []string{"0 1 3", "0 2 1", "0 3 1"}, dfLines)
	assert.EqualValues(t, 4+1+5, pairOcc[0])
}

func TestMergeMinTFThreshold(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{
		{SecondID: 1, TF: 5, DF: 5},
		{SecondID: 2, TF: 1, DF: 1},
	}})
	var tfBuf bytes.Buffer
	pairOcc := runMerge(t, 3, MergeConfig{MinTF: 2, TFWriter: &tfBuf}, b)
	lines := strings.Split(strings.TrimSpace(tfBuf.String()), "\n")
	assert.Equal(t, []string{"0 1 5"}, lines)
	// pair_occurrences only folds in kept (>= min_tf) records.
	assert.EqualValues(t, 5, pairOcc[0])
}

func TestMergeMonotoneThresholdNeverAddsLines(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{
		{SecondID: 1, TF: 5, DF: 5},
		{SecondID: 2, TF: 1, DF: 1},
	}})
	var loose, strict bytes.Buffer
	runMerge(t, 3, MergeConfig{MinTF: 1, TFWriter: &loose}, b)

	b2 := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{
		{SecondID: 1, TF: 5, DF: 5},
		{SecondID: 2, TF: 1, DF: 1},
	}})
	runMerge(t, 3, MergeConfig{MinTF: 5, TFWriter: &strict}, b2)

	looseLines := strings.Split(strings.TrimSpace(loose.String()), "\n")
	strictLines := strings.Split(strings.TrimSpace(strict.String()), "\n")
	assert.LessOrEqual(t, len(strictLines), len(looseLines))
	assert.Contains(t, looseLines, "0 1 5")
	assert.Equal(t, []string{"0 1 5"}, strictLines)
}

func TestMergeSelfPairCountsTowardPairOccurrencesButNotEmitted(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{
		{SecondID: 0, TF: 2, DF: 1},
		{SecondID: 1, TF: 3, DF: 1},
	}})
	var tfBuf bytes.Buffer
	pairOcc := runMerge(t, 2, MergeConfig{TFWriter: &tfBuf}, b)
	lines := strings.Split(strings.TrimSpace(tfBuf.String()), "\n")
	assert.Equal(t, []string{"0 1 3"}, lines, "self-pair (0,0) must not appear in the TF file")
	assert.EqualValues(t, 5, pairOcc[0], "pair_occurrences includes the self-pair's tf")
}

func TestMergeInterleavesDistinctFirstIDsInOrder(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b1 := makeBatch(t, dir, arbiter, Cell{FirstID: 2, Records: []Record{{SecondID: 0, TF: 1, DF: 1}}})
	b2 := makeBatch(t, dir, arbiter, Cell{FirstID: 0, Records: []Record{{SecondID: 2, TF: 1, DF: 1}}})
	b3 := makeBatch(t, dir, arbiter, Cell{FirstID: 1, Records: []Record{{SecondID: 0, TF: 1, DF: 1}}})

	var tfBuf bytes.Buffer
	runMerge(t, 3, MergeConfig{TFWriter: &tfBuf}, b1, b2, b3)
	lines := strings.Split(strings.TrimSpace(tfBuf.String()), "\n")
	assert.Equal(t, []string{"0 2 1", "1 0 1", "2 0 1"}, lines)
}

func TestMergeEmptyBatchesProduceEmptyOutput(t *testing.T) {
	dir := t.TempDir()
	arbiter := NewFileHandleArbiter(16)
	b, err := NewBatch(dir, arbiter, false)
	require.NoError(t, err)
	require.NoError(t, b.Finish())

	var tfBuf bytes.Buffer
	pairOcc := runMerge(t, 1, MergeConfig{TFWriter: &tfBuf}, b)
	assert.Empty(t, tfBuf.String())
	assert.EqualValues(t, 0, pairOcc[0])
}
