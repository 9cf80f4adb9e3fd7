package httpapi

import "context"

// serverBaseCtx is cancelled on process shutdown so in-flight inference
// stops with it. Defaults to Background.
var serverBaseCtx = context.Background()

// SetBaseContext sets the process-level base context used by handlers.
func SetBaseContext(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}
	serverBaseCtx = ctx
}

// requestContext derives the context an inference handler runs under: it
// ends with the request, with the server base context, or after the
// configured request timeout.
func requestContext(r context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(r)
	stop := context.AfterFunc(serverBaseCtx, cancel)
	if requestTimeout > 0 {
		var tcancel context.CancelFunc
		ctx, tcancel = context.WithTimeout(ctx, requestTimeout)
		return ctx, func() { tcancel(); stop(); cancel() }
	}
	return ctx, func() { stop(); cancel() }
}
