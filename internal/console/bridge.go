package console

import (
	"errors"
	"time"
)

// ErrBridgeTimeout means the bot loop did not pick up or answer a control
// request in time.
var ErrBridgeTimeout = errors.New("bot did not respond in time")

// DefaultBridgeTimeout bounds how long a control-surface caller waits on the
// bot loop.
const DefaultBridgeTimeout = 10 * time.Second

type response struct {
	value any
	err   error
}

// Request is one unit of work handed to the bot loop. Its reply channel is
// buffered so resolution never blocks the loop; it resolves exactly once.
type Request struct {
	fn    func() (any, error)
	reply chan response
}

// Resolve runs the request on the caller's goroutine and publishes the
// result. Called by the bot loop only.
func (r Request) Resolve() {
	v, err := r.fn()
	r.reply <- response{value: v, err: err}
}

// Bridge carries synchronous control-surface calls into the bot's dispatch
// loop. The HTTP side enqueues a request and awaits its single-resolution
// reply with a timeout; the bot side drains Requests inside its select loop.
type Bridge struct {
	reqCh   chan Request
	timeout time.Duration
}

func NewBridge(timeout time.Duration) *Bridge {
	if timeout <= 0 {
		timeout = DefaultBridgeTimeout
	}
	return &Bridge{
		reqCh:   make(chan Request),
		timeout: timeout,
	}
}

// Requests is consumed by the bot loop.
func (b *Bridge) Requests() <-chan Request { return b.reqCh }

// Do submits fn to the bot loop and waits for its result.
func (b *Bridge) Do(fn func() (any, error)) (any, error) {
	req := Request{fn: fn, reply: make(chan response, 1)}
	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case b.reqCh <- req:
	case <-timer.C:
		return nil, ErrBridgeTimeout
	}
	select {
	case resp := <-req.reply:
		return resp.value, resp.err
	case <-timer.C:
		return nil, ErrBridgeTimeout
	}
}
