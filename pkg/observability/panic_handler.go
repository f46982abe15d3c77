package observability

import (
	"runtime/debug"
)

// RecoverPanic recovers from a panic and logs it with a stack trace. Call it
// in a defer at the top of background goroutines:
//
//	go func() {
//	    defer observability.RecoverPanic(logger, "background fetch")
//	    // ...
//	}()
//
// The panic is not re-raised.
func RecoverPanic(logger *Logger, context string) {
	if r := recover(); r != nil {
		logger.WithField("panic", r).
			WithField("stack", string(debug.Stack())).
			WithField("context", context).
			Error("PANIC recovered")
	}
}
