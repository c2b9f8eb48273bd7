package request

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/osdc/pkg/clustermap"
	"github.com/marmos91/osdc/pkg/vino"
)

func newTestRequest() *Request {
	return New(vino.Head(1), clustermap.PGID{Pool: 1, PS: 1, Size: 1})
}

func TestNewRequestStartsWithOneRef(t *testing.T) {
	r := newTestRequest()
	assert.EqualValues(t, 1, r.RefCount())
	assert.EqualValues(t, -1, r.LastTarget())
}

func TestGetPutBalance(t *testing.T) {
	r := newTestRequest()
	r.Get()
	assert.EqualValues(t, 2, r.RefCount())
	assert.False(t, r.Put())
	assert.True(t, r.Put())
}

func TestPutBelowZeroPanics(t *testing.T) {
	r := newTestRequest()
	r.Put()
	assert.Panics(t, func() { r.Put() })
}

func TestAbortIsMonotonic(t *testing.T) {
	r := newTestRequest()
	assert.False(t, r.Aborted())
	r.Abort()
	assert.True(t, r.Aborted())
}

func TestSetRetryOrsFlag(t *testing.T) {
	r := newTestRequest()
	assert.Zero(t, r.Header.Flags&FlagRetry)
	r.SetRetry()
	assert.NotZero(t, r.Header.Flags&FlagRetry)
}

func TestCompleteSignalsWaiter(t *testing.T) {
	r := newTestRequest()
	go func() {
		time.Sleep(time.Millisecond)
		r.Complete(42)
	}()
	assert.EqualValues(t, 42, r.Wait())
}

func TestCompleteIsIdempotent(t *testing.T) {
	r := newTestRequest()
	r.Complete(10)
	r.Complete(20)
	assert.EqualValues(t, 10, r.Result())
}

func TestCompleteInvokesCallbackInsteadOfChannel(t *testing.T) {
	r := newTestRequest()
	done := make(chan int64, 1)
	r.Callback = func(req *Request) { done <- req.Result() }

	r.Complete(7)
	select {
	case got := <-done:
		assert.EqualValues(t, 7, got)
	case <-time.After(time.Second):
		t.Fatal("callback not invoked")
	}
}

func TestRecordDispatchAndAccessors(t *testing.T) {
	r := newTestRequest()
	now := time.Now().UnixNano()
	r.RecordDispatch(5, "10.0.0.1:6800", now)

	assert.EqualValues(t, 5, r.LastTarget())
	assert.Equal(t, "10.0.0.1:6800", r.LastTargetAddr())
	assert.Equal(t, now, r.LastStamp())
}

func TestRevokePagesClearsBothMessages(t *testing.T) {
	r := newTestRequest()
	r.Out = NewMessage([][]byte{{1, 2, 3}})
	require.True(t, r.SetReply(NewMessage([][]byte{{4, 5, 6}})))

	require.NotNil(t, r.Out.Pages())
	require.NotNil(t, r.Reply().Pages())

	replyLanding := r.RevokePages()

	assert.True(t, r.Aborted())
	assert.True(t, replyLanding)
	assert.Nil(t, r.Out.Pages())
	assert.Nil(t, r.Reply().Pages())
}

func TestRevokePagesReportsNoReplyLanding(t *testing.T) {
	r := newTestRequest()
	r.Out = NewMessage([][]byte{{1, 2, 3}})

	replyLanding := r.RevokePages()

	assert.True(t, r.Aborted())
	assert.False(t, replyLanding)
}

func TestSetReplyFailsOnceAborted(t *testing.T) {
	r := newTestRequest()
	r.Abort()
	assert.False(t, r.SetReply(NewMessage(nil)))
	assert.Nil(t, r.Reply())
}

func TestSetReplyFailsWhenAlreadyInstalled(t *testing.T) {
	r := newTestRequest()
	first := NewMessage([][]byte{{1}})
	second := NewMessage([][]byte{{2}})
	assert.True(t, r.SetReply(first))
	assert.False(t, r.SetReply(second))
	assert.Same(t, first, r.Reply())
}

func TestMessageGetPut(t *testing.T) {
	msg := NewMessage(nil)
	msg.Get()
	assert.EqualValues(t, 1, msg.Put())
	assert.EqualValues(t, 0, msg.Put())
}
