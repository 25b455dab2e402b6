package bgtask

import (
	"context"
	"fmt"
	"runtime"
	"testing"

	"golang.org/x/sync/errgroup"
)

func BenchmarkTaskFetch(b *testing.B) {
	workloads := []struct {
		name   string
		items  int
		buffer int
	}{
		{name: "items=1k/buffer=0", items: 1000, buffer: 0},
		{name: "items=1k/buffer=64", items: 1000, buffer: 64},
		{name: "items=1k/buffer=1024", items: 1000, buffer: 1024},
	}

	for _, tc := range workloads {
		b.Run(tc.name, func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := runTaskCase(tc.items, tc.buffer); err != nil {
					b.Fatalf("run failed: %v", err)
				}
			}
		})
	}
}

func BenchmarkErrgroupChannel(b *testing.B) {
	for _, buffer := range []int{0, 64, 1024} {
		b.Run(fmt.Sprintf("items=1k/buffer=%d", buffer), func(b *testing.B) {
			b.ReportAllocs()
			for i := 0; i < b.N; i++ {
				if err := runErrgroupChannelCase(1000, buffer); err != nil {
					b.Fatalf("run failed: %v", err)
				}
			}
		})
	}
}

func runTaskCase(items, buffer int) error {
	gen := FromSeq[int](func(yield func(int) bool) {
		for i := 0; i < items; i++ {
			if !yield(i) {
				return
			}
		}
	})

	task, err := New(context.Background(), "bench", Static(gen), Args{}, WithBuffer(buffer))
	if err != nil {
		return err
	}
	defer task.Close()

	got := 0
	for !task.Completed() {
		for _, err := range task.Fetch() {
			if err != nil {
				return err
			}
			got++
		}
		runtime.Gosched()
	}
	if got != items {
		return fmt.Errorf("expected %d items, got %d", items, got)
	}
	return nil
}

func runErrgroupChannelCase(items, buffer int) error {
	var eg errgroup.Group
	out := make(chan int, buffer)

	eg.Go(func() error {
		defer close(out)
		for i := 0; i < items; i++ {
			out <- i
		}
		return nil
	})

	got := 0
	for range out {
		got++
	}
	if err := eg.Wait(); err != nil {
		return err
	}
	if got != items {
		return fmt.Errorf("expected %d items, got %d", items, got)
	}
	return nil
}
