package exception

import (
	"runtime/debug"

	"weave/logx"
	"weave/metrics"
)

// SafeGo runs fn on its own goroutine and turns a panic into a log line and
// a counter bump instead of a crash.
func SafeGo(name string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				metrics.PanicTotal.Inc()
				logx.Error("PANIC", name, r, string(debug.Stack()))
			}
		}()
		fn()
	}()
}
