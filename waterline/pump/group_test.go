package pump

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func TestGroupRunsSessionsIndependently(t *testing.T) {
	var g Group
	ctx := context.Background()

	chunksA, allA := makeChunks(8, 512)
	dstA := newMemDest()
	sessA, err := New(&chunkSource{chunks: chunksA}, dstA, Config{})
	if err != nil {
		t.Fatalf("New A: %v", err)
	}

	chunksB, allB := makeChunks(3, 2048)
	dstB := newMemDest()
	sessB, err := New(&chunkSource{chunks: chunksB}, dstB, Config{})
	if err != nil {
		t.Fatalf("New B: %v", err)
	}

	g.Go(ctx, sessA)
	g.Go(ctx, sessB)
	if err := g.Wait(); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if !bytes.Equal(dstA.bytes(), allA) {
		t.Fatalf("session A bytes differ")
	}
	if !bytes.Equal(dstB.bytes(), allB) {
		t.Fatalf("session B bytes differ")
	}
}

func TestGroupFailureDoesNotAffectSiblings(t *testing.T) {
	var g Group
	ctx := context.Background()

	cause := errors.New("bad read")
	chunksA, _ := makeChunks(8, 512)
	failing, err := New(&chunkSource{chunks: chunksA, failAt: 2, failErr: cause}, newMemDest(), Config{})
	if err != nil {
		t.Fatalf("New failing: %v", err)
	}

	chunksB, allB := makeChunks(5, 1024)
	dstB := newMemDest()
	healthy, err := New(&chunkSource{chunks: chunksB}, dstB, Config{})
	if err != nil {
		t.Fatalf("New healthy: %v", err)
	}

	g.Go(ctx, failing)
	g.Go(ctx, healthy)

	err = g.Wait()
	if !errors.Is(err, cause) {
		t.Fatalf("expected the read failure, got %v", err)
	}
	if healthy.Err() != nil {
		t.Fatalf("healthy session failed: %v", healthy.Err())
	}
	if !bytes.Equal(dstB.bytes(), allB) {
		t.Fatalf("healthy session bytes differ")
	}
}

func TestStateStrings(t *testing.T) {
	states := map[State]string{
		StatePriming:       "priming",
		StateFilling:       "filling",
		StateAwaitingDrain: "awaiting-drain",
		StateFinalizing:    "finalizing",
		StateErrorTeardown: "error-teardown",
		StateClosed:        "closed",
		State(99):          "unknown",
	}
	for st, want := range states {
		if got := st.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", st, got, want)
		}
	}
}
