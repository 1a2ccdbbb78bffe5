package waterline

import (
	"bytes"
	"context"
	"testing"

	"go.uber.org/goleak"

	"github.com/TheusHen/waterline/waterline/pump"
	"github.com/TheusHen/waterline/waterline/stream"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCopyRoundTrip(t *testing.T) {
	src := bytes.Repeat([]byte("stream of bytes "), 4096) // 64 KB
	var dst bytes.Buffer

	err := Copy(context.Background(), stream.NopWriteCloser(&dst), bytes.NewReader(src), pump.Config{})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if !bytes.Equal(dst.Bytes(), src) {
		t.Fatalf("copied bytes differ: got %d, want %d", dst.Len(), len(src))
	}
}

func TestCopyEmptySource(t *testing.T) {
	var dst bytes.Buffer
	err := Copy(context.Background(), stream.NopWriteCloser(&dst), bytes.NewReader(nil), pump.Config{})
	if err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if dst.Len() != 0 {
		t.Fatalf("expected no bytes, got %d", dst.Len())
	}
}

func TestCopyRejectsInvalidWatermarks(t *testing.T) {
	var dst bytes.Buffer
	err := Copy(context.Background(), stream.NopWriteCloser(&dst), bytes.NewReader([]byte("x")),
		pump.Config{HighWater: 10, LowWater: 10})
	if err != pump.ErrInvalidWatermarks {
		t.Fatalf("expected ErrInvalidWatermarks, got %v", err)
	}
}
