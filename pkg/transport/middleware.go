package transport

// Middleware decorates a ChatCompleter.
type Middleware func(ChatCompleter) ChatCompleter

// Chain composes middleware so that Chain(a, b)(h) runs a, then b, then h.
func Chain(middlewares ...Middleware) Middleware {
	return func(next ChatCompleter) ChatCompleter {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
