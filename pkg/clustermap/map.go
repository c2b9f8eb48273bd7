// Package clustermap models the epoch-numbered snapshot of cluster
// membership and placement rules that the placement engine and dispatcher
// read through a lock-free published pointer.
package clustermap

import "fmt"

// Fsid is the filesystem identifier learned from the monitor at mount time.
type Fsid [16]byte

func (f Fsid) String() string {
	return fmt.Sprintf("%x", [16]byte(f))
}

// Node is one storage-serving member of the cluster.
type Node struct {
	ID     int32
	Addr   string
	Up     bool
	Weight float64
}

// RuleKey identifies a placement rule by the pool, pool type and replica
// count it governs.
type RuleKey struct {
	Pool int64
	Type int32
	Size int32
}

// Rule describes how to select Size nodes for a placement group governed by
// this rule. CandidateNodes is the ordered bucket of node ids eligible for
// selection; placement picks Size of them deterministically from PGID.PS.
type Rule struct {
	Size           int32
	CandidateNodes []int32
}

// PGID identifies a placement group: an equivalence class of objects that
// share a placement decision.
type PGID struct {
	Pool      int64
	Type      int32
	Preferred int32 // >= 0 selects a preferred node's local pg count; -1 means "normal"
	PS        uint32 // placement seed, derived from the object name hash
	Size      int32
}

func (p PGID) ruleKey() RuleKey {
	return RuleKey{Pool: p.Pool, Type: p.Type, Size: p.Size}
}

func (p PGID) String() string {
	return fmt.Sprintf("%d.%x", p.Pool, p.PS)
}

// PGCounts holds the pg_num values used by stable-mod, one count for
// "local" (preferred-node) placement groups and one for ordinary ones.
type PGCounts struct {
	Local  int32
	Normal int32
}

// Map is an immutable, epoch-numbered snapshot of cluster membership,
// weights, placement rules and pg counts. Once constructed a Map is never
// mutated; advancing means building a new Map and publishing it.
type Map struct {
	Epoch    uint32
	Fsid     Fsid
	Nodes    map[int32]Node
	Rules    map[RuleKey]Rule
	PGCounts PGCounts
}

// Node looks up a node by id.
func (m *Map) Node(id int32) (Node, bool) {
	n, ok := m.Nodes[id]
	return n, ok
}

// Rule looks up the placement rule governing pgid.
func (m *Map) Rule(pgid PGID) (Rule, bool) {
	r, ok := m.Rules[pgid.ruleKey()]
	return r, ok
}

// Addr returns the address of node id, or "" if the node is unknown.
func (m *Map) Addr(id int32) string {
	if n, ok := m.Nodes[id]; ok {
		return n.Addr
	}
	return ""
}
