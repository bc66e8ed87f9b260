package cooccur

import (
	"bytes"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPpmiTFEmitsWhenXGreaterThanOne(t *testing.T) {
	// Corresponds to a single document "a b c" (vocab a=0,b=1,c=2, width
	// 1): n_0=1 (a's only record, to b, tf=1), n_1=2 (b's two records,
	// to a and c, tf=1 each), N_pairs=4. x = (4/1)/(2/1) = 2 > 1, so
	// ln(2) must be emitted for the pair (0,1).
	p := &PpmiPass{Config: PpmiConfig{
		TotalPairs: 4,
		Stats:      tfStats(1, 2, 2),
	}}
	var out bytes.Buffer
	require.NoError(t, p.RunTF(strings.NewReader("0 1 1\n"), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	fields := strings.Fields(lines[0])
	require.Len(t, fields, 3)
	assert.Equal(t, "0", fields[0])
	assert.Equal(t, "1", fields[1])
	val, err := parseFloat(fields[2])
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), val, 1e-9)
}

func TestPpmiTFNotEmittedWhenXAtOrBelowOne(t *testing.T) {
	p := &PpmiPass{Config: PpmiConfig{
		TotalPairs: 4,
		Stats:      tfStats(2, 2, 2),
	}}
	var out bytes.Buffer
	require.NoError(t, p.RunTF(strings.NewReader("0 1 1\n"), &out))
	assert.Empty(t, out.String())
}

func TestPpmiSkipsLinesWhereUGreaterThanV(t *testing.T) {
	p := &PpmiPass{Config: PpmiConfig{
		TotalPairs: 4,
		Stats:      tfStats(1, 2, 2),
	}}
	var out bytes.Buffer
	require.NoError(t, p.RunTF(strings.NewReader("1 0 1\n"), &out))
	assert.Empty(t, out.String())
}

func TestPpmiDFModeUsesDocumentOccurrences(t *testing.T) {
	p := &PpmiPass{Config: PpmiConfig{
		TotalDocuments: 4,
		Stats:          dfStats(1, 2),
	}}
	var out bytes.Buffer
	require.NoError(t, p.RunDF(strings.NewReader("0 1 1\n"), &out))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 1)
	fields := strings.Fields(lines[0])
	val, err := parseFloat(fields[2])
	require.NoError(t, err)
	assert.InDelta(t, math.Log(2), val, 1e-9)
}

func TestPpmiAllEmittedValuesArePositive(t *testing.T) {
	p := &PpmiPass{Config: PpmiConfig{
		TotalPairs: 100,
		Stats:      tfStats(1, 1, 50, 50),
	}}
	var out bytes.Buffer
	require.NoError(t, p.RunTF(strings.NewReader("0 1 1\n2 3 1\n"), &out))
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		fields := strings.Fields(line)
		require.Len(t, fields, 3)
		val, err := parseFloat(fields[2])
		require.NoError(t, err)
		assert.Greater(t, val, 0.0)
	}
}

func TestPpmiMalformedLineIsParseError(t *testing.T) {
	p := &PpmiPass{Config: PpmiConfig{Stats: tfStats(1, 1)}}
	var out bytes.Buffer
	err := p.RunTF(strings.NewReader("not a valid line\n"), &out)
	require.Error(t, err)
	var cerr *Error
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, Parse, cerr.Kind)
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

func tfStats(pairOccurrences ...uint64) []TokenStats {
	return BuildTokenStats(pairOccurrences, make([]uint32, len(pairOccurrences)))
}

func dfStats(documentOccurrences ...uint32) []TokenStats {
	return BuildTokenStats(make([]uint64, len(documentOccurrences)), documentOccurrences)
}
