package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/osdc/pkg/clustermap"
)

func sampleMap() *clustermap.Map {
	return &clustermap.Map{
		Epoch: 3,
		Fsid:  clustermap.Fsid{1, 2, 3},
		Nodes: map[int32]clustermap.Node{
			5: {ID: 5, Addr: "10.0.0.5:6800", Up: true, Weight: 1.0},
			7: {ID: 7, Addr: "10.0.0.7:6800", Up: false, Weight: 0.5},
		},
		Rules: map[clustermap.RuleKey]clustermap.Rule{
			{Pool: 1, Size: 2}: {Size: 2, CandidateNodes: []int32{5, 7}},
		},
		PGCounts: clustermap.PGCounts{Local: 8, Normal: 64},
	}
}

func TestMapDecoderFullRoundTrip(t *testing.T) {
	m := sampleMap()
	delta, err := EncodeFullMap(m)
	require.NoError(t, err)
	assert.Equal(t, m.Epoch, delta.Epoch)

	var dec MapDecoder
	got, err := dec.DecodeFull(delta)
	require.NoError(t, err)

	assert.Equal(t, m.Epoch, got.Epoch)
	assert.Equal(t, m.Fsid, got.Fsid)
	assert.Equal(t, m.Nodes, got.Nodes)
	assert.Equal(t, m.Rules, got.Rules)
	assert.Equal(t, m.PGCounts, got.PGCounts)
}

func TestMapDecoderFullRejectsEpochMismatch(t *testing.T) {
	m := sampleMap()
	delta, err := EncodeFullMap(m)
	require.NoError(t, err)
	delta.Epoch = 999 // tamper with the envelope epoch

	var dec MapDecoder
	_, err = dec.DecodeFull(delta)
	assert.Error(t, err)
}

func TestMapDecoderIncrementalUpsertAndRemove(t *testing.T) {
	prev := sampleMap()

	inc := IncrementalMap{
		Epoch:  4,
		Upsert: map[int32]clustermap.Node{9: {ID: 9, Addr: "10.0.0.9:6800", Up: true, Weight: 1.0}},
		Remove: []int32{7},
	}
	delta, err := EncodeIncrementalMap(inc)
	require.NoError(t, err)

	var dec MapDecoder
	next, err := dec.DecodeIncremental(prev, delta)
	require.NoError(t, err)

	assert.EqualValues(t, 4, next.Epoch)
	assert.Equal(t, prev.Fsid, next.Fsid)
	_, stillThere := next.Node(7)
	assert.False(t, stillThere)
	added, ok := next.Node(9)
	require.True(t, ok)
	assert.Equal(t, "10.0.0.9:6800", added.Addr)
	original, ok := next.Node(5)
	require.True(t, ok)
	assert.Equal(t, prev.Nodes[5], original)
	assert.Equal(t, prev.PGCounts, next.PGCounts)
	assert.Equal(t, prev.Rules, next.Rules)
}

func TestMapDecoderIncrementalReplacesRule(t *testing.T) {
	prev := sampleMap()
	newCounts := clustermap.PGCounts{Local: 16, Normal: 128}

	inc := IncrementalMap{
		Epoch: 4,
		RuleDeltas: map[clustermap.RuleKey]clustermap.Rule{
			{Pool: 1, Size: 2}: {Size: 2, CandidateNodes: []int32{5}},
		},
		PGCounts: &newCounts,
	}
	delta, err := EncodeIncrementalMap(inc)
	require.NoError(t, err)

	var dec MapDecoder
	next, err := dec.DecodeIncremental(prev, delta)
	require.NoError(t, err)

	rule, ok := next.Rule(clustermap.PGID{Pool: 1, Size: 2})
	require.True(t, ok)
	assert.Equal(t, []int32{5}, rule.CandidateNodes)
	assert.Equal(t, newCounts, next.PGCounts)
}
