package cocoro_test

import "go.uber.org/goleak"

// leakOpts ignores the package's pooled worker goroutines: an idle
// worker sits blocked on a channel receive deliberately, waiting to be
// handed the next coroutine body, and is not itself a leak.
var leakOpts = []goleak.Option{
	goleak.IgnoreTopFunction("github.com/cocoro-go/cocoro.(*worker).loop"),
}
