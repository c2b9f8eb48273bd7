package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/messenger"
	"github.com/marmos91/osdc/pkg/monclient"
	"github.com/marmos91/osdc/pkg/registry"
	"github.com/marmos91/osdc/pkg/request"
	"github.com/marmos91/osdc/pkg/vino"
)

var fsid = clustermap.Fsid{1}

func mapWithNode(epoch uint32, node int32, addr string, up bool) *clustermap.Map {
	return &clustermap.Map{
		Epoch: epoch,
		Fsid:  fsid,
		Nodes: map[int32]clustermap.Node{node: {ID: node, Addr: addr, Up: up, Weight: 1}},
		Rules: map[clustermap.RuleKey]clustermap.Rule{
			{Pool: 1, Size: 1}: {Size: 1, CandidateNodes: []int32{node}},
		},
		PGCounts: clustermap.PGCounts{Normal: 1, Local: 1},
	}
}

type fakeDecoder struct{}

func (fakeDecoder) DecodeIncremental(prev *clustermap.Map, d clustermap.Delta) (*clustermap.Map, error) {
	next := *prev
	next.Epoch = d.Epoch
	return &next, nil
}
func (fakeDecoder) DecodeFull(d clustermap.Delta) (*clustermap.Map, error) {
	return &clustermap.Map{Epoch: d.Epoch, Fsid: fsid, Nodes: map[int32]clustermap.Node{}, Rules: map[clustermap.RuleKey]clustermap.Rule{}}, nil
}

func newEngine(t *testing.T, initial *clustermap.Map) (*Engine, *messenger.Fake, *clustermap.Holder) {
	t.Helper()
	holder := clustermap.NewHolder(initial, fakeDecoder{})
	reg := registry.New(time.Hour)
	msgr := &messenger.Fake{}
	mon := &monclient.Fake{FsidValue: fsid}
	return New(holder, reg, msgr, mon), msgr, holder
}

func pgidFor(node int32) clustermap.PGID {
	return clustermap.PGID{Pool: 1, Size: 1, PS: uint32(node)}
}

func TestSendPicksTargetAndDispatches(t *testing.T) {
	m := mapWithNode(1, 5, "10.0.0.5:6800", true)
	eng, msgr, _ := newEngine(t, m)

	req := request.New(vino.Head(1), clustermap.PGID{Pool: 1, Size: 1})
	req.Out = request.NewMessage(nil)

	err := eng.Send(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, msgr.Sent, 1)
	assert.EqualValues(t, 5, req.LastTarget())
	assert.EqualValues(t, 1, req.Header.OsdmapEpoch)
}

func TestSendWithNoTargetRequestsNewerMap(t *testing.T) {
	m := mapWithNode(1, 5, "addr", false)
	eng, msgr, _ := newEngine(t, m)
	mon := eng.MonClient.(*monclient.Fake)

	req := request.New(vino.Head(1), clustermap.PGID{Pool: 1, Size: 1})
	err := eng.Send(context.Background(), req)

	require.NoError(t, err)
	assert.Empty(t, msgr.Sent)
	assert.Contains(t, mon.RequestedEpochs, uint32(2))
}

func TestKickResendsWithRetryFlagOnTargetChange(t *testing.T) {
	m1 := mapWithNode(1, 5, "node5:6800", true)
	eng, msgr, holder := newEngine(t, m1)

	req := request.New(vino.Head(1), clustermap.PGID{Pool: 1, Size: 1})
	req.Out = request.NewMessage(nil)
	eng.Registry.Register(req)
	require.NoError(t, eng.Send(context.Background(), req))
	assert.Len(t, msgr.Sent, 1)

	m2 := mapWithNode(2, 7, "node7:6800", true)
	holder.OnReplace = nil
	setMap(holder, m2)

	require.NoError(t, eng.Kick(context.Background(), ""))

	assert.EqualValues(t, 7, req.LastTarget())
	assert.NotZero(t, req.Header.Flags&request.FlagRetry)
	assert.Len(t, msgr.Sent, 2)
}

func setMap(h *clustermap.Holder, m *clustermap.Map) {
	// test-only: publish m directly, bypassing Apply's epoch-ordering checks.
	h.TestPublish(m)
}

func TestKickSkipsAbortedRequests(t *testing.T) {
	m1 := mapWithNode(1, 5, "node5:6800", true)
	eng, msgr, holder := newEngine(t, m1)

	req := request.New(vino.Head(1), clustermap.PGID{Pool: 1, Size: 1})
	req.Out = request.NewMessage(nil)
	eng.Registry.Register(req)
	require.NoError(t, eng.Send(context.Background(), req))
	req.Abort()

	m2 := mapWithNode(2, 7, "node7:6800", true)
	setMap(holder, m2)

	require.NoError(t, eng.Kick(context.Background(), ""))
	assert.Len(t, msgr.Sent, 1) // only the original send, no resend for an aborted request
}

func TestOnResetTriggersKickForMatchingAddr(t *testing.T) {
	m := mapWithNode(1, 5, "node5:6800", true)
	eng, msgr, _ := newEngine(t, m)

	req := request.New(vino.Head(1), clustermap.PGID{Pool: 1, Size: 1})
	req.Out = request.NewMessage(nil)
	eng.Registry.Register(req)
	require.NoError(t, eng.Send(context.Background(), req))

	eng.OnReset(context.Background(), "node5:6800")
	assert.Len(t, msgr.Sent, 2)
	assert.NotZero(t, req.Header.Flags&request.FlagRetry)
}
