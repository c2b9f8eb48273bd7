package wire

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/marmos91/osdc/pkg/clustermap"
)

// MapDecoder implements clustermap.Decoder against the little-endian wire
// encoding of full and incremental cluster maps. It is the concrete decoder
// osdc.Mount wires into clustermap.Holder; clustermap itself stays free of
// any encoding dependency.
type MapDecoder struct{}

// DecodeFull parses a complete cluster map snapshot: epoch, fsid, node
// table, rule table, pg counts.
func (MapDecoder) DecodeFull(d clustermap.Delta) (*clustermap.Map, error) {
	r := bytes.NewReader(d.Bytes)

	epoch, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode full epoch: %w", err)
	}
	if epoch != d.Epoch {
		return nil, fmt.Errorf("decode full: embedded epoch %d != delta epoch %d", epoch, d.Epoch)
	}
	fsid, err := DecodeFsid(r)
	if err != nil {
		return nil, err
	}

	nodes, err := decodeNodeTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode full nodes: %w", err)
	}
	rules, err := decodeRuleTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode full rules: %w", err)
	}
	counts, err := decodePGCounts(r)
	if err != nil {
		return nil, fmt.Errorf("decode full pg counts: %w", err)
	}

	return &clustermap.Map{
		Epoch:    epoch,
		Fsid:     fsid,
		Nodes:    nodes,
		Rules:    rules,
		PGCounts: counts,
	}, nil
}

// DecodeIncremental applies a sparse delta on top of prev: a set of
// upserted nodes, a set of removed node ids, a set of replaced rules, and
// optionally new pg counts. Anything not mentioned in the delta is carried
// over unchanged from prev, since incrementals describe only what changed.
func (MapDecoder) DecodeIncremental(prev *clustermap.Map, d clustermap.Delta) (*clustermap.Map, error) {
	r := bytes.NewReader(d.Bytes)

	epoch, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode incremental epoch: %w", err)
	}
	if epoch != d.Epoch {
		return nil, fmt.Errorf("decode incremental: embedded epoch %d != delta epoch %d", epoch, d.Epoch)
	}

	upserted, err := decodeNodeTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode incremental upserted nodes: %w", err)
	}
	removed, err := decodeNodeIDList(r)
	if err != nil {
		return nil, fmt.Errorf("decode incremental removed nodes: %w", err)
	}
	ruleDeltas, err := decodeRuleTable(r)
	if err != nil {
		return nil, fmt.Errorf("decode incremental rules: %w", err)
	}
	hasCounts, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode incremental pg counts flag: %w", err)
	}
	counts := prev.PGCounts
	if hasCounts != 0 {
		if counts, err = decodePGCounts(r); err != nil {
			return nil, fmt.Errorf("decode incremental pg counts: %w", err)
		}
	}

	next := &clustermap.Map{
		Epoch:    epoch,
		Fsid:     prev.Fsid,
		Nodes:    make(map[int32]clustermap.Node, len(prev.Nodes)),
		Rules:    make(map[clustermap.RuleKey]clustermap.Rule, len(prev.Rules)),
		PGCounts: counts,
	}
	for id, n := range prev.Nodes {
		next.Nodes[id] = n
	}
	for id, n := range upserted {
		next.Nodes[id] = n
	}
	for _, id := range removed {
		delete(next.Nodes, id)
	}
	for k, v := range prev.Rules {
		next.Rules[k] = v
	}
	for k, v := range ruleDeltas {
		next.Rules[k] = v
	}

	return next, nil
}

func decodeNodeTable(r io.Reader) (map[int32]clustermap.Node, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[int32]clustermap.Node, n)
	for i := uint32(0); i < n; i++ {
		id, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("node[%d] id: %w", i, err)
		}
		addrLen, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("node[%d] addr len: %w", i, err)
		}
		addrBuf := make([]byte, addrLen)
		if _, err := io.ReadFull(r, addrBuf); err != nil {
			return nil, fmt.Errorf("node[%d] addr: %w", i, err)
		}
		upByte, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("node[%d] up: %w", i, err)
		}
		weightBits, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("node[%d] weight: %w", i, err)
		}
		nodeID := int32(id)
		out[nodeID] = clustermap.Node{
			ID:     nodeID,
			Addr:   string(addrBuf),
			Up:     upByte != 0,
			Weight: math.Float64frombits(weightBits),
		}
	}
	return out, nil
}

func encodeNodeTable(w io.Writer, nodes map[int32]clustermap.Node) error {
	if err := writeUint32(w, uint32(len(nodes))); err != nil {
		return err
	}
	for id, n := range nodes {
		if err := writeUint32(w, uint32(id)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(len(n.Addr))); err != nil {
			return err
		}
		if _, err := io.WriteString(w, n.Addr); err != nil {
			return err
		}
		up := uint32(0)
		if n.Up {
			up = 1
		}
		if err := writeUint32(w, up); err != nil {
			return err
		}
		if err := writeUint64(w, math.Float64bits(n.Weight)); err != nil {
			return err
		}
	}
	return nil
}

func decodeNodeIDList(r io.Reader) ([]int32, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		id, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("removed[%d]: %w", i, err)
		}
		out[i] = int32(id)
	}
	return out, nil
}

func encodeNodeIDList(w io.Writer, ids []int32) error {
	if err := writeUint32(w, uint32(len(ids))); err != nil {
		return err
	}
	for _, id := range ids {
		if err := writeUint32(w, uint32(id)); err != nil {
			return err
		}
	}
	return nil
}

func decodeRuleTable(r io.Reader) (map[clustermap.RuleKey]clustermap.Rule, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make(map[clustermap.RuleKey]clustermap.Rule, n)
	for i := uint32(0); i < n; i++ {
		pool, err := readUint64(r)
		if err != nil {
			return nil, fmt.Errorf("rule[%d] pool: %w", i, err)
		}
		typ, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("rule[%d] type: %w", i, err)
		}
		size, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("rule[%d] size: %w", i, err)
		}
		candidates, err := decodeNodeIDList(r)
		if err != nil {
			return nil, fmt.Errorf("rule[%d] candidates: %w", i, err)
		}
		key := clustermap.RuleKey{Pool: int64(pool), Type: int32(typ), Size: int32(size)}
		out[key] = clustermap.Rule{Size: int32(size), CandidateNodes: candidates}
	}
	return out, nil
}

func encodeRuleTable(w io.Writer, rules map[clustermap.RuleKey]clustermap.Rule) error {
	if err := writeUint32(w, uint32(len(rules))); err != nil {
		return err
	}
	for key, rule := range rules {
		if err := writeUint64(w, uint64(key.Pool)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(key.Type)); err != nil {
			return err
		}
		if err := writeUint32(w, uint32(key.Size)); err != nil {
			return err
		}
		if err := encodeNodeIDList(w, rule.CandidateNodes); err != nil {
			return err
		}
	}
	return nil
}

func decodePGCounts(r io.Reader) (clustermap.PGCounts, error) {
	local, err := readUint32(r)
	if err != nil {
		return clustermap.PGCounts{}, err
	}
	normal, err := readUint32(r)
	if err != nil {
		return clustermap.PGCounts{}, err
	}
	return clustermap.PGCounts{Local: int32(local), Normal: int32(normal)}, nil
}

func encodePGCounts(w io.Writer, c clustermap.PGCounts) error {
	if err := writeUint32(w, uint32(c.Local)); err != nil {
		return err
	}
	return writeUint32(w, uint32(c.Normal))
}

// EncodeFullMap serializes m into a Delta suitable for DecodeFull. Used by
// monitor-side test doubles and by tools that seed a map snapshot.
func EncodeFullMap(m *clustermap.Map) (clustermap.Delta, error) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, m.Epoch); err != nil {
		return clustermap.Delta{}, err
	}
	if err := EncodeFsid(&buf, m.Fsid); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodeNodeTable(&buf, m.Nodes); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodeRuleTable(&buf, m.Rules); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodePGCounts(&buf, m.PGCounts); err != nil {
		return clustermap.Delta{}, err
	}
	return clustermap.Delta{Epoch: m.Epoch, Bytes: buf.Bytes()}, nil
}

// IncrementalMap describes a sparse cluster-map delta before it is encoded.
type IncrementalMap struct {
	Epoch       uint32
	Upsert      map[int32]clustermap.Node
	Remove      []int32
	RuleDeltas  map[clustermap.RuleKey]clustermap.Rule
	PGCounts    *clustermap.PGCounts // nil means "unchanged from prev"
}

// EncodeIncrementalMap serializes inc into a Delta suitable for
// DecodeIncremental.
func EncodeIncrementalMap(inc IncrementalMap) (clustermap.Delta, error) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, inc.Epoch); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodeNodeTable(&buf, inc.Upsert); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodeNodeIDList(&buf, inc.Remove); err != nil {
		return clustermap.Delta{}, err
	}
	if err := encodeRuleTable(&buf, inc.RuleDeltas); err != nil {
		return clustermap.Delta{}, err
	}
	if inc.PGCounts == nil {
		if err := writeUint32(&buf, 0); err != nil {
			return clustermap.Delta{}, err
		}
	} else {
		if err := writeUint32(&buf, 1); err != nil {
			return clustermap.Delta{}, err
		}
		if err := encodePGCounts(&buf, *inc.PGCounts); err != nil {
			return clustermap.Delta{}, err
		}
	}
	return clustermap.Delta{Epoch: inc.Epoch, Bytes: buf.Bytes()}, nil
}
