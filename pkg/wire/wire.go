// Package wire encodes and decodes the on-wire OP, OP_REPLY and OSD_MAP
// messages. Unlike the metadata-server protocol's RFC 4506 XDR encoding,
// every multi-byte OSD client field here is little-endian.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/replypath"
	"github.com/marmos91/osdc/pkg/request"
)

// SizeofReplyHead is the encoded size of an OP_REPLY's fixed header:
// tid(8) + flags(4) + result(4) + num_ops(4) + pad(4).
const SizeofReplyHead = 24

// SizeofOpResult is the encoded size of one per-op result entry in an
// OP_REPLY: a single signed 32-bit rval, padded to 16 bytes to leave room
// for the per-op extents the full protocol can carry.
const SizeofOpResult = 16

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// EncodeHeader writes an OP request header's fixed-size fields: everything
// in request.Header except the layout, which is a client-side input never
// carried on the wire.
func EncodeHeader(w io.Writer, h request.Header) error {
	if err := writeUint64(w, h.ClientInc); err != nil {
		return fmt.Errorf("encode client_inc: %w", err)
	}
	if err := writeUint32(w, h.Flags); err != nil {
		return fmt.Errorf("encode flags: %w", err)
	}
	if err := writeUint32(w, h.OsdmapEpoch); err != nil {
		return fmt.Errorf("encode osdmap_epoch: %w", err)
	}
	if err := writeUint64(w, h.Tid); err != nil {
		return fmt.Errorf("encode tid: %w", err)
	}
	if err := writeUint64(w, h.Ino); err != nil {
		return fmt.Errorf("encode ino: %w", err)
	}
	if err := writeUint64(w, h.Bno); err != nil {
		return fmt.Errorf("encode bno: %w", err)
	}
	if err := writeUint64(w, h.Snap); err != nil {
		return fmt.Errorf("encode snap: %w", err)
	}
	if err := writeUint32(w, h.NumSnaps); err != nil {
		return fmt.Errorf("encode num_snaps: %w", err)
	}
	if err := writeUint64(w, h.SnapSeq); err != nil {
		return fmt.Errorf("encode snap_seq: %w", err)
	}
	if err := writeUint32(w, h.NumOps); err != nil {
		return fmt.Errorf("encode num_ops: %w", err)
	}
	if err := writeUint32(w, h.Opcode); err != nil {
		return fmt.Errorf("encode opcode: %w", err)
	}
	if err := writeUint64(w, h.Offset); err != nil {
		return fmt.Errorf("encode offset: %w", err)
	}
	if err := writeUint64(w, h.Length); err != nil {
		return fmt.Errorf("encode length: %w", err)
	}
	return nil
}

// DecodeHeader reads an OP request header's fixed-size fields. Layout is
// never carried on the wire and is left zero-valued; callers that need it
// must supply it from the layout cache keyed by Ino.
func DecodeHeader(r io.Reader) (request.Header, error) {
	var h request.Header
	var err error
	if h.ClientInc, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode client_inc: %w", err)
	}
	if h.Flags, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode flags: %w", err)
	}
	if h.OsdmapEpoch, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode osdmap_epoch: %w", err)
	}
	if h.Tid, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode tid: %w", err)
	}
	if h.Ino, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode ino: %w", err)
	}
	if h.Bno, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode bno: %w", err)
	}
	if h.Snap, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode snap: %w", err)
	}
	if h.NumSnaps, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode num_snaps: %w", err)
	}
	if h.SnapSeq, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode snap_seq: %w", err)
	}
	if h.NumOps, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode num_ops: %w", err)
	}
	if h.Opcode, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode opcode: %w", err)
	}
	if h.Offset, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode offset: %w", err)
	}
	if h.Length, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode length: %w", err)
	}
	return h, nil
}

// EncodeSnapVector writes a count-prefixed vector of snapshot ids.
func EncodeSnapVector(w io.Writer, snaps []uint64) error {
	if err := writeUint32(w, uint32(len(snaps))); err != nil {
		return fmt.Errorf("encode snap count: %w", err)
	}
	for i, s := range snaps {
		if err := writeUint64(w, s); err != nil {
			return fmt.Errorf("encode snap[%d]: %w", i, err)
		}
	}
	return nil
}

// DecodeSnapVector reads a count-prefixed vector of snapshot ids.
func DecodeSnapVector(r io.Reader) ([]uint64, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("decode snap count: %w", err)
	}
	out := make([]uint64, n)
	for i := range out {
		if out[i], err = readUint64(r); err != nil {
			return nil, fmt.Errorf("decode snap[%d]: %w", i, err)
		}
	}
	return out, nil
}

// EncodeReplyHeader writes the fixed OP_REPLY header.
func EncodeReplyHeader(w io.Writer, h replypath.ReplyHeader) error {
	if err := writeUint64(w, h.Tid); err != nil {
		return fmt.Errorf("encode reply tid: %w", err)
	}
	if err := writeUint32(w, h.Flags); err != nil {
		return fmt.Errorf("encode reply flags: %w", err)
	}
	if err := writeUint32(w, uint32(h.Result)); err != nil {
		return fmt.Errorf("encode reply result: %w", err)
	}
	if err := writeUint32(w, h.NumOps); err != nil {
		return fmt.Errorf("encode reply num_ops: %w", err)
	}
	return writeUint32(w, 0) // pad to SizeofReplyHead
}

// DecodeReplyHeader reads the fixed OP_REPLY header.
func DecodeReplyHeader(r io.Reader) (replypath.ReplyHeader, error) {
	var h replypath.ReplyHeader
	var err error
	if h.Tid, err = readUint64(r); err != nil {
		return h, fmt.Errorf("decode reply tid: %w", err)
	}
	if h.Flags, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode reply flags: %w", err)
	}
	result, err := readUint32(r)
	if err != nil {
		return h, fmt.Errorf("decode reply result: %w", err)
	}
	h.Result = int32(result)
	if h.NumOps, err = readUint32(r); err != nil {
		return h, fmt.Errorf("decode reply num_ops: %w", err)
	}
	if _, err := readUint32(r); err != nil { // pad
		return h, fmt.Errorf("decode reply padding: %w", err)
	}
	return h, nil
}

// DecodeFsid reads the 16-byte filesystem identifier.
func DecodeFsid(r io.Reader) (clustermap.Fsid, error) {
	var f clustermap.Fsid
	if _, err := io.ReadFull(r, f[:]); err != nil {
		return f, fmt.Errorf("decode fsid: %w", err)
	}
	return f, nil
}

// EncodeFsid writes the 16-byte filesystem identifier.
func EncodeFsid(w io.Writer, f clustermap.Fsid) error {
	_, err := w.Write(f[:])
	return err
}

// DecodeOSDMapUpdate reads an OSD_MAP message: fsid, then a count-prefixed
// list of (epoch, len, bytes) incrementals, then the same shape for fulls.
func DecodeOSDMapUpdate(r io.Reader) (clustermap.Update, error) {
	var u clustermap.Update
	fsid, err := DecodeFsid(r)
	if err != nil {
		return u, err
	}
	u.Fsid = fsid

	if u.Incremental, err = decodeDeltaList(r); err != nil {
		return u, fmt.Errorf("decode incrementals: %w", err)
	}
	if u.Full, err = decodeDeltaList(r); err != nil {
		return u, fmt.Errorf("decode fulls: %w", err)
	}
	return u, nil
}

// EncodeOSDMapUpdate writes an OSD_MAP message. Used by test doubles and by
// the monitor-facing side of the fake messenger; a real OSD never encodes
// this message, only decodes it.
func EncodeOSDMapUpdate(w io.Writer, u clustermap.Update) error {
	if err := EncodeFsid(w, u.Fsid); err != nil {
		return fmt.Errorf("encode fsid: %w", err)
	}
	if err := encodeDeltaList(w, u.Incremental); err != nil {
		return fmt.Errorf("encode incrementals: %w", err)
	}
	if err := encodeDeltaList(w, u.Full); err != nil {
		return fmt.Errorf("encode fulls: %w", err)
	}
	return nil
}

func decodeDeltaList(r io.Reader) ([]clustermap.Delta, error) {
	n, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	out := make([]clustermap.Delta, n)
	for i := range out {
		epoch, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("delta[%d] epoch: %w", i, err)
		}
		length, err := readUint32(r)
		if err != nil {
			return nil, fmt.Errorf("delta[%d] len: %w", i, err)
		}
		data := make([]byte, length)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("delta[%d] bytes: %w", i, err)
		}
		out[i] = clustermap.Delta{Epoch: epoch, Bytes: data}
	}
	return out, nil
}

func encodeDeltaList(w io.Writer, deltas []clustermap.Delta) error {
	if err := writeUint32(w, uint32(len(deltas))); err != nil {
		return err
	}
	for i, d := range deltas {
		if err := writeUint32(w, d.Epoch); err != nil {
			return fmt.Errorf("delta[%d] epoch: %w", i, err)
		}
		if err := writeUint32(w, uint32(len(d.Bytes))); err != nil {
			return fmt.Errorf("delta[%d] len: %w", i, err)
		}
		if _, err := w.Write(d.Bytes); err != nil {
			return fmt.Errorf("delta[%d] bytes: %w", i, err)
		}
	}
	return nil
}

// EncodeGetOSDMap writes a GET_OSDMAP(epoch) request: the epoch the client
// has and wants a map newer than.
func EncodeGetOSDMap(w io.Writer, haveEpoch uint32) error {
	return writeUint32(w, haveEpoch)
}

// DecodeGetOSDMap reads a GET_OSDMAP(epoch) request.
func DecodeGetOSDMap(r io.Reader) (uint32, error) {
	epoch, err := readUint32(r)
	if err != nil {
		return 0, fmt.Errorf("decode get_osdmap epoch: %w", err)
	}
	return epoch, nil
}

// Entity identifies the sender or target of a PING message: a type byte
// (osd or monitor, see pkg/messenger) plus its numeric id.
type Entity struct {
	Type byte
	Num  int32
}

// EncodePing writes a PING(entity, addr) message: who is pinging and the
// address they believe they are reachable at.
func EncodePing(w io.Writer, entity Entity, addr string) error {
	if _, err := w.Write([]byte{entity.Type}); err != nil {
		return fmt.Errorf("encode ping entity type: %w", err)
	}
	if err := writeUint32(w, uint32(entity.Num)); err != nil {
		return fmt.Errorf("encode ping entity num: %w", err)
	}
	if err := writeUint32(w, uint32(len(addr))); err != nil {
		return fmt.Errorf("encode ping addr len: %w", err)
	}
	if _, err := io.WriteString(w, addr); err != nil {
		return fmt.Errorf("encode ping addr: %w", err)
	}
	return nil
}

// DecodePing reads a PING(entity, addr) message.
func DecodePing(r io.Reader) (Entity, string, error) {
	var typeBuf [1]byte
	if _, err := io.ReadFull(r, typeBuf[:]); err != nil {
		return Entity{}, "", fmt.Errorf("decode ping entity type: %w", err)
	}
	num, err := readUint32(r)
	if err != nil {
		return Entity{}, "", fmt.Errorf("decode ping entity num: %w", err)
	}
	addrLen, err := readUint32(r)
	if err != nil {
		return Entity{}, "", fmt.Errorf("decode ping addr len: %w", err)
	}
	addrBuf := make([]byte, addrLen)
	if _, err := io.ReadFull(r, addrBuf); err != nil {
		return Entity{}, "", fmt.Errorf("decode ping addr: %w", err)
	}
	return Entity{Type: typeBuf[0], Num: int32(num)}, string(addrBuf), nil
}
