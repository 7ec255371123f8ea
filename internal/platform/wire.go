package platform

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"
)

// envelope is the wire frame exchanged over the websocket session.
// Requests carry a sequence number the reply echoes back, letting
// call correlate out-of-order replies on a single
// connection (grounded on the teacher's network.go envelope shape,
// re-encoded with msgpack in place of the teacher's protobuf codec
// since no protoc/codegen step is available here).
type envelope struct {
	Seq     uint64 `msgpack:"seq"`
	Type    string `msgpack:"type"`
	Payload []byte `msgpack:"payload,omitempty"`
}

func encodeEnvelope(e envelope) ([]byte, error) {
	return msgpack.Marshal(e)
}

func decodeEnvelope(b []byte) (envelope, error) {
	var e envelope
	err := msgpack.Unmarshal(b, &e)
	return e, err
}

func encodePayload(v any) ([]byte, error) { return msgpack.Marshal(v) }

func decodePayload(b []byte, v any) error { return msgpack.Unmarshal(b, v) }

// pendingCall is a single in-flight request awaiting its reply.
type pendingCall struct {
	replyCh chan envelope
	timer   *time.Timer
}

// callRegistry correlates outbound requests with their replies by
// sequence number, grounded on the teacher's network.go pending map +
// pendingMu + AfterFunc-based timeout.
type callRegistry struct {
	seq     atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]*pendingCall
}

func newCallRegistry() *callRegistry {
	return &callRegistry{pending: make(map[uint64]*pendingCall)}
}

func (r *callRegistry) nextSeq() uint64 { return r.seq.Add(1) }

func (r *callRegistry) register(seq uint64, timeout time.Duration, onTimeout func()) *pendingCall {
	pc := &pendingCall{replyCh: make(chan envelope, 1)}
	pc.timer = time.AfterFunc(timeout, func() {
		r.mu.Lock()
		_, ok := r.pending[seq]
		delete(r.pending, seq)
		r.mu.Unlock()
		if ok {
			onTimeout()
		}
	})
	r.mu.Lock()
	r.pending[seq] = pc
	r.mu.Unlock()
	return pc
}

// resolve delivers a reply to its waiter, if one is still registered.
func (r *callRegistry) resolve(e envelope) bool {
	r.mu.Lock()
	pc, ok := r.pending[e.Seq]
	if ok {
		delete(r.pending, e.Seq)
	}
	r.mu.Unlock()
	if !ok {
		return false
	}
	pc.timer.Stop()
	pc.replyCh <- e
	return true
}

// cancelAll fails every outstanding call, used on disconnect.
func (r *callRegistry) cancelAll() {
	r.mu.Lock()
	pending := r.pending
	r.pending = make(map[uint64]*pendingCall)
	r.mu.Unlock()
	for _, pc := range pending {
		pc.timer.Stop()
		close(pc.replyCh)
	}
}

func (r *callRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

const defaultRequestTimeout = 10 * time.Second

// call writes msgType/payload and blocks for a correlated reply or
// until timeout/ctx expires. Grounded on network.go's
// sendRequestWithTimeout.
func (c *Client) call(ctx context.Context, msgType string, req any, resp any) error {
	payload, err := encodePayload(req)
	if err != nil {
		return fmt.Errorf("platform: encode %s: %w", msgType, err)
	}
	seq := c.calls.nextSeq()

	pc := c.calls.register(seq, defaultRequestTimeout, func() {})

	if err := c.writeEnvelope(envelope{Seq: seq, Type: msgType, Payload: payload}); err != nil {
		c.calls.resolve(envelope{Seq: seq})
		return fmt.Errorf("platform: write %s: %w", msgType, err)
	}

	select {
	case e, ok := <-pc.replyCh:
		if !ok {
			return fmt.Errorf("platform: %s: connection closed while waiting", msgType)
		}
		if resp == nil {
			return nil
		}
		return decodePayload(e.Payload, resp)
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(defaultRequestTimeout + time.Second):
		return fmt.Errorf("platform: %s: timed out", msgType)
	}
}

func (c *Client) writeEnvelope(e envelope) error {
	b, err := encodeEnvelope(e)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.BinaryMessage, b)
}
