package clustermap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct {
	incErr  error
	fullErr error
}

func (f *fakeDecoder) DecodeIncremental(prev *Map, d Delta) (*Map, error) {
	if f.incErr != nil {
		return nil, f.incErr
	}
	next := *prev
	next.Epoch = d.Epoch
	return &next, nil
}

func (f *fakeDecoder) DecodeFull(d Delta) (*Map, error) {
	if f.fullErr != nil {
		return nil, f.fullErr
	}
	return &Map{Epoch: d.Epoch, Fsid: testFsid, Nodes: map[int32]Node{}, Rules: map[RuleKey]Rule{}}, nil
}

var testFsid = Fsid{1, 2, 3}

func newTestHolder() *Holder {
	initial := &Map{Epoch: 5, Fsid: testFsid, Nodes: map[int32]Node{}, Rules: map[RuleKey]Rule{}}
	return NewHolder(initial, &fakeDecoder{})
}

func TestApplyIncrementalAdvancesEpoch(t *testing.T) {
	h := newTestHolder()

	err := h.Apply(context.Background(), Update{
		Fsid:        testFsid,
		Incremental: []Delta{{Epoch: 6}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 6, h.Current().Epoch)
}

func TestApplySkipsNonContiguousIncremental(t *testing.T) {
	h := newTestHolder()

	err := h.Apply(context.Background(), Update{
		Fsid:        testFsid,
		Incremental: []Delta{{Epoch: 8}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, h.Current().Epoch)
}

func TestApplyFullOnlyLastConsidered(t *testing.T) {
	h := newTestHolder()

	err := h.Apply(context.Background(), Update{
		Fsid: testFsid,
		Full: []Delta{{Epoch: 6}, {Epoch: 9}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 9, h.Current().Epoch)
}

func TestApplyFullSkippedIfNotNewer(t *testing.T) {
	h := newTestHolder()

	err := h.Apply(context.Background(), Update{
		Fsid: testFsid,
		Full: []Delta{{Epoch: 5}},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 5, h.Current().Epoch)
}

func TestApplyRejectsFsidMismatch(t *testing.T) {
	h := newTestHolder()

	err := h.Apply(context.Background(), Update{
		Fsid:        Fsid{9, 9, 9},
		Incremental: []Delta{{Epoch: 6}},
	})
	assert.ErrorIs(t, err, ErrFsidMismatch)
	assert.EqualValues(t, 5, h.Current().Epoch)
}

func TestApplyIncrementalRepeatIsNoop(t *testing.T) {
	h := newTestHolder()

	require.NoError(t, h.Apply(context.Background(), Update{Fsid: testFsid, Incremental: []Delta{{Epoch: 6}}}))
	require.NoError(t, h.Apply(context.Background(), Update{Fsid: testFsid, Incremental: []Delta{{Epoch: 6}}}))
	assert.EqualValues(t, 6, h.Current().Epoch)
}

func TestApplyDecodeErrorLeavesMapUnchanged(t *testing.T) {
	initial := &Map{Epoch: 5, Fsid: testFsid, Nodes: map[int32]Node{}, Rules: map[RuleKey]Rule{}}
	h := NewHolder(initial, &fakeDecoder{incErr: errors.New("truncated")})

	err := h.Apply(context.Background(), Update{Fsid: testFsid, Incremental: []Delta{{Epoch: 6}}})
	assert.Error(t, err)
	assert.EqualValues(t, 5, h.Current().Epoch)
}

func TestOnReplaceInvokedAfterPublish(t *testing.T) {
	h := newTestHolder()
	var gotEpoch uint32
	h.OnReplace = func(_ context.Context, epoch uint32) { gotEpoch = epoch }

	require.NoError(t, h.Apply(context.Background(), Update{Fsid: testFsid, Incremental: []Delta{{Epoch: 6}}}))
	assert.EqualValues(t, 6, gotEpoch)
}
