package main

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// loopSafely calls f until ctx is done, restarting it after a panic.
func loopSafely(ctx context.Context, f func()) {
	for ctx.Err() == nil {
		runSafely(f)
	}
}

func runSafely(f func()) {
	defer func() {
		if v := recover(); v != nil {
			glog.Errorf("Panic: %v, restarting", v)
			time.Sleep(time.Second)
		}
	}()

	f()
}
