// Package reloader wires process signals to callbacks.
package reloader

import (
	"os"
	"os/signal"
	"syscall"
)

// OnSIGHUP calls fn for every SIGHUP until stop is closed.
func OnSIGHUP(stop <-chan struct{}, fn func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGHUP)
	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-stop:
				return
			case <-ch:
				fn()
			}
		}
	}()
}
