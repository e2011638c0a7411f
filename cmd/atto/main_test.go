package main

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/slonopotamus/Atto/internal/events"
)

func TestShutdownSignalClosesOnceUnderConcurrentEmits(t *testing.T) {
	bus := events.NewEventBus()
	ch := shutdownSignal(bus)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(context.Background(), events.Event{Type: events.EventShutdown, Source: "cli"})
		}()
	}
	wg.Wait()
	bus.Stop()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("shutdown channel never closed")
	}
}
