package hushlib

import (
	"log"
	"runtime/debug"
)

// SafeGo runs fn in a goroutine with panic recovery. A panicking
// notification or callback must not take the delivering goroutine down
// with it. If l is non-nil, panics are logged with stack traces.
func SafeGo(l *log.Logger, context string, fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil && l != nil {
				l.Printf("PANIC [%s]: %v\n%s", context, r, debug.Stack())
			}
		}()
		fn()
	}()
}
