// Package placement implements the pure, lock-free mapping from a placement
// group id to a target node given a cluster map snapshot.
package placement

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"

	"github.com/marmos91/osdc/pkg/clustermap"
)

// StableMod computes x mod m using a modulus variant that changes little as
// m grows, matching the server's pg-count stable-mod function bit-for-bit.
// m need not be a power of two; mask must be the smallest value of the form
// 2^k-1 with 2^k >= m.
func StableMod(x int32, m int32, mask int32) int32 {
	if m <= 0 {
		return 0
	}
	if (x & mask) < m {
		return x & mask
	}
	return x & (mask >> 1)
}

// MaskFor returns the smallest mask of the form 2^k-1 with 2^k >= m, the
// mask StableMod needs for a pg count of m.
func MaskFor(m int32) int32 {
	if m <= 0 {
		return 0
	}
	bits := int32(1)
	for bits < m {
		bits <<= 1
	}
	return bits - 1
}

// PGIDForObject derives the placement group id an object belongs to: the
// pool and rule shape come from the layout, the placement seed from a
// hash of the object's name, matching the server's own object->pg mapping.
func PGIDForObject(objectName string, pool int64, ruleType int32, replicaSize int32, preferred int32) clustermap.PGID {
	return clustermap.PGID{
		Pool:      pool,
		Type:      ruleType,
		Preferred: preferred,
		PS:        uint32(xxhash.Sum64String(objectName)),
		Size:      replicaSize,
	}
}

// PickTarget is the placement engine's sole entry point: given a cluster map
// snapshot and a placement group id, return the first live node of the
// ordered list of up to rule.Size candidates that selectCandidates draws
// from the rule, or ok=false if no rule exists or every listed candidate is
// down.
//
// PickTarget is deterministic and side-effect free: two calls with the same
// map pointer and pgid always return the same result.
func PickTarget(m *clustermap.Map, pgid clustermap.PGID) (node int32, ok bool) {
	rule, found := m.Rule(pgid)
	if !found {
		return 0, false
	}

	pgNum := m.PGCounts.Normal
	if pgid.Preferred >= 0 {
		pgNum = m.PGCounts.Local
	}
	mask := MaskFor(pgNum)
	pps := StableMod(int32(pgid.PS), pgNum, mask)

	candidates := selectCandidates(rule, uint32(pps))
	for _, id := range candidates {
		n, exists := m.Node(id)
		if exists && n.Up {
			return id, true
		}
	}
	return 0, false
}

// selectCandidates deterministically orders up to rule.Size nodes out of
// rule.CandidateNodes for placement seed pps. Each candidate's score is an
// xxhash of (pps, node id); candidates are taken highest score first,
// without replacement. Node weights play no part in the score.
func selectCandidates(rule clustermap.Rule, pps uint32) []int32 {
	size := int(rule.Size)
	if size > len(rule.CandidateNodes) {
		size = len(rule.CandidateNodes)
	}
	if size <= 0 {
		return nil
	}

	type scored struct {
		id    int32
		score uint64
	}
	scores := make([]scored, len(rule.CandidateNodes))
	for i, id := range rule.CandidateNodes {
		scores[i] = scored{id: id, score: candidateScore(pps, id)}
	}

	// Selection sort over at most `size` elements; candidate lists are
	// small (replica counts and rule fan-outs, not cluster size), so this
	// is cheaper than a full sort for the common case.
	out := make([]int32, 0, size)
	for k := 0; k < size; k++ {
		best := k
		for i := k + 1; i < len(scores); i++ {
			if scores[i].score > scores[best].score {
				best = i
			}
		}
		scores[k], scores[best] = scores[best], scores[k]
		out = append(out, scores[k].id)
	}
	return out
}

func candidateScore(pps uint32, nodeID int32) uint64 {
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[0:4], pps)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(nodeID))
	return xxhash.Sum64(buf[:])
}
