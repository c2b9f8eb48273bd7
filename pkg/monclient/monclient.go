// Package monclient defines the monitor client contract: the source of
// cluster-map updates and the mount's filesystem identifier. The real
// monitor client is an external collaborator out of scope for this module.
package monclient

import (
	"context"

	"github.com/marmos91/osdc/pkg/clustermap"
)

// MonClient supplies cluster-map updates and the mount's filesystem
// identifier to the OSD client.
type MonClient interface {
	// RequestOSDMap asks the monitor to send the map at or after epoch.
	// Opportunistic: the caller does not wait for a reply.
	RequestOSDMap(ctx context.Context, epoch uint32)

	// GotOSDMap notifies the monitor client that the OSD client has
	// advanced to epoch, so the monitor can stop retransmitting older maps.
	GotOSDMap(ctx context.Context, epoch uint32)

	// Fsid returns the filesystem identifier learned at mount.
	Fsid() clustermap.Fsid
}

// Fake is an in-process MonClient recording every request, for dispatch and
// clustermap tests.
type Fake struct {
	FsidValue       clustermap.Fsid
	RequestedEpochs []uint32
	GotEpochs       []uint32
}

func (f *Fake) RequestOSDMap(_ context.Context, epoch uint32) {
	f.RequestedEpochs = append(f.RequestedEpochs, epoch)
}

func (f *Fake) GotOSDMap(_ context.Context, epoch uint32) {
	f.GotEpochs = append(f.GotEpochs, epoch)
}

func (f *Fake) Fsid() clustermap.Fsid {
	return f.FsidValue
}
