package http2

import (
	"sync"

	"github.com/valyala/fasthttp"
)

// Ctx carries a single client request/response pair through a Conn's
// internal write and read loops, and is how Do() gets its result back
// across goroutines: writeLoop/readLoop report completion by sending (then
// closing) Err.
type Ctx struct {
	Request  *fasthttp.Request
	Response *fasthttp.Response
	Err      chan error
}

var ctxClientPool = sync.Pool{
	New: func() interface{} {
		return &Ctx{Err: make(chan error, 1)}
	},
}

// AcquireCtx gets a Ctx from the pool.
func AcquireCtx() *Ctx {
	return ctxClientPool.Get().(*Ctx)
}

// ReleaseCtx resets ctx and returns it to the pool. Err is replaced with a
// fresh channel, since the one ctx carried may already have been closed.
func ReleaseCtx(ctx *Ctx) {
	ctx.Request = nil
	ctx.Response = nil
	ctx.Err = make(chan error, 1)

	ctxClientPool.Put(ctx)
}
