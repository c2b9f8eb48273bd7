package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/replypath"
	"github.com/marmos91/osdc/pkg/request"
	"github.com/marmos91/osdc/pkg/vino"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := request.Header{
		ClientInc:   7,
		Flags:       request.FlagAck | request.FlagOnDisk,
		OsdmapEpoch: 42,
		Tid:         1001,
		Ino:         55,
		Bno:         2,
		Snap:        vino.SnapHead,
		NumSnaps:    0,
		SnapSeq:     0,
		NumOps:      1,
		Opcode:      1,
		Offset:      4096,
		Length:      8192,
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeHeader(&buf, h))

	got, err := DecodeHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestHeaderDecodeTruncatedFails(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeHeader(&buf, request.Header{Tid: 1}))

	truncated := buf.Bytes()[:len(buf.Bytes())-4]
	_, err := DecodeHeader(bytes.NewReader(truncated))
	assert.Error(t, err)
}

func TestSnapVectorRoundTrip(t *testing.T) {
	snaps := []uint64{1, 2, 3, 100}
	var buf bytes.Buffer
	require.NoError(t, EncodeSnapVector(&buf, snaps))

	got, err := DecodeSnapVector(&buf)
	require.NoError(t, err)
	assert.Equal(t, snaps, got)
}

func TestSnapVectorEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeSnapVector(&buf, nil))

	got, err := DecodeSnapVector(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplyHeaderRoundTrip(t *testing.T) {
	h := replypath.ReplyHeader{Tid: 88, Flags: 1, Result: -5, NumOps: 2}

	var buf bytes.Buffer
	require.NoError(t, EncodeReplyHeader(&buf, h))
	assert.Equal(t, SizeofReplyHead, buf.Len())

	got, err := DecodeReplyHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestOSDMapUpdateRoundTrip(t *testing.T) {
	fsid := clustermap.Fsid{1, 2, 3}
	u := clustermap.Update{
		Fsid:        fsid,
		Incremental: []clustermap.Delta{{Epoch: 5, Bytes: []byte("abc")}},
		Full:        []clustermap.Delta{{Epoch: 9, Bytes: []byte("xyz123")}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodeOSDMapUpdate(&buf, u))

	got, err := DecodeOSDMapUpdate(&buf)
	require.NoError(t, err)
	assert.Equal(t, u.Fsid, got.Fsid)
	require.Len(t, got.Incremental, 1)
	assert.Equal(t, u.Incremental[0], got.Incremental[0])
	require.Len(t, got.Full, 1)
	assert.Equal(t, u.Full[0], got.Full[0])
}

func TestOSDMapUpdateEmptyDeltas(t *testing.T) {
	u := clustermap.Update{Fsid: clustermap.Fsid{9}}

	var buf bytes.Buffer
	require.NoError(t, EncodeOSDMapUpdate(&buf, u))

	got, err := DecodeOSDMapUpdate(&buf)
	require.NoError(t, err)
	assert.Equal(t, u.Fsid, got.Fsid)
	assert.Empty(t, got.Incremental)
	assert.Empty(t, got.Full)
}

func TestGetOSDMapRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeGetOSDMap(&buf, 17))

	got, err := DecodeGetOSDMap(&buf)
	require.NoError(t, err)
	assert.EqualValues(t, 17, got)
}

func TestPingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	entity := Entity{Type: 'o', Num: 5}
	require.NoError(t, EncodePing(&buf, entity, "10.0.0.5:6800"))

	gotEntity, gotAddr, err := DecodePing(&buf)
	require.NoError(t, err)
	assert.Equal(t, entity, gotEntity)
	assert.Equal(t, "10.0.0.5:6800", gotAddr)
}

func TestFsidRoundTrip(t *testing.T) {
	fsid := clustermap.Fsid{1, 2, 3, 4}
	var buf bytes.Buffer
	require.NoError(t, EncodeFsid(&buf, fsid))

	got, err := DecodeFsid(&buf)
	require.NoError(t, err)
	assert.Equal(t, fsid, got)
}
