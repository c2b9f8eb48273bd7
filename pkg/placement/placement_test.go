package placement

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/marmos91/osdc/pkg/clustermap"
)

func testMap(epoch uint32, nodes map[int32]bool) *clustermap.Map {
	m := &clustermap.Map{
		Epoch: epoch,
		Nodes: map[int32]clustermap.Node{},
		Rules: map[clustermap.RuleKey]clustermap.Rule{
			{Pool: 1, Type: 0, Size: 1}: {Size: 1, CandidateNodes: []int32{5, 7, 9}},
		},
		PGCounts: clustermap.PGCounts{Normal: 8, Local: 4},
	}
	for id, up := range nodes {
		m.Nodes[id] = clustermap.Node{ID: id, Addr: "addr", Up: up, Weight: 1}
	}
	return m
}

func testPGID() clustermap.PGID {
	return clustermap.PGID{Pool: 1, Type: 0, Preferred: -1, PS: 3, Size: 1}
}

func TestPickTargetDeterministic(t *testing.T) {
	m := testMap(1, map[int32]bool{5: true, 7: true, 9: true})
	pgid := testPGID()

	a, okA := PickTarget(m, pgid)
	b, okB := PickTarget(m, pgid)

	assert.True(t, okA)
	assert.True(t, okB)
	assert.Equal(t, a, b)
}

func TestPickTargetSkipsDownNodes(t *testing.T) {
	// A size-3 rule so the ordered candidate list holds all three nodes; a
	// size-1 rule would list only the single top-scored node.
	m := testMap(1, map[int32]bool{5: false, 7: false, 9: true})
	m.Rules[clustermap.RuleKey{Pool: 1, Type: 0, Size: 3}] = clustermap.Rule{Size: 3, CandidateNodes: []int32{5, 7, 9}}
	pgid := testPGID()
	pgid.Size = 3

	node, ok := PickTarget(m, pgid)
	assert.True(t, ok)
	assert.EqualValues(t, 9, node)
}

func TestPickTargetNoneWhenAllDown(t *testing.T) {
	m := testMap(1, map[int32]bool{5: false, 7: false, 9: false})
	pgid := testPGID()

	_, ok := PickTarget(m, pgid)
	assert.False(t, ok)
}

func TestPickTargetUnknownRule(t *testing.T) {
	m := testMap(1, map[int32]bool{5: true})
	pgid := clustermap.PGID{Pool: 99, Type: 0, Size: 1}

	_, ok := PickTarget(m, pgid)
	assert.False(t, ok)
}

func TestStableModWithinMask(t *testing.T) {
	mask := MaskFor(8)
	assert.EqualValues(t, 7, mask)
	assert.EqualValues(t, 3, StableMod(3, 8, mask))
}

func TestStableModFallsBackToHalfMask(t *testing.T) {
	mask := MaskFor(5)
	assert.EqualValues(t, 7, mask)
	// x=6: (6&7)=6, not < 5, so falls back to x & (mask>>1) = 6&3 = 2.
	assert.EqualValues(t, 2, StableMod(6, 5, mask))
}

func TestMaskForPowerOfTwo(t *testing.T) {
	assert.EqualValues(t, 0, MaskFor(0))
	assert.EqualValues(t, 0, MaskFor(1))
	assert.EqualValues(t, 3, MaskFor(3))
	assert.EqualValues(t, 15, MaskFor(16))
}

// TestPickTargetFollowsMapBump loosely mirrors S2: when a node goes down the
// rule's ordered candidate list is re-walked and placement lands on the next
// live candidate.
func TestPickTargetFollowsMapBump(t *testing.T) {
	rule := clustermap.Rule{Size: 3, CandidateNodes: []int32{5, 7, 9}}
	pgid := clustermap.PGID{Pool: 1, Type: 0, Preferred: -1, PS: 3, Size: 3}

	before := testMap(1, map[int32]bool{5: true, 7: true, 9: true})
	before.Rules[clustermap.RuleKey{Pool: 1, Type: 0, Size: 3}] = rule
	target, ok := PickTarget(before, pgid)
	assert.True(t, ok)

	after := testMap(2, map[int32]bool{5: true, 7: true, 9: true})
	after.Rules[clustermap.RuleKey{Pool: 1, Type: 0, Size: 3}] = rule
	after.Nodes[target] = clustermap.Node{ID: target, Addr: "addr", Up: false, Weight: 1}

	newTarget, ok := PickTarget(after, pgid)
	assert.True(t, ok)
	assert.NotEqual(t, target, newTarget)
}
