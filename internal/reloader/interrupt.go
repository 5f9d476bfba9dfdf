package reloader

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
)

// ConfirmQuit asks on out whether to quit and reads the answer from in.
// Anything starting with y counts as yes; EOF counts as yes as well so a
// detached process can still be interrupted.
func ConfirmQuit(in *bufio.Reader, out io.Writer) bool {
	fmt.Fprint(out, "\nReally quit? (y/n) ")
	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return true
	}
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(line)), "y")
}

// OnInterrupt closes the returned channel on SIGTERM, or on SIGINT once
// ConfirmQuit says so.
func OnInterrupt(in io.Reader, out io.Writer) <-chan struct{} {
	quit := make(chan struct{})
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	r := bufio.NewReader(in)
	go func() {
		defer signal.Stop(ch)
		for sig := range ch {
			if sig == syscall.SIGTERM || ConfirmQuit(r, out) {
				close(quit)
				return
			}
		}
	}()
	return quit
}
