package waterline

import (
	"context"
	"io"

	"github.com/TheusHen/waterline/waterline/pump"
	"github.com/TheusHen/waterline/waterline/stream"
)

// Copy pumps src into dst until end-of-stream, honoring watermark
// backpressure, and closes dst once everything is delivered. Use
// stream.NopWriteCloser for destinations whose lifetime is managed
// elsewhere. It intentionally stays small so applications needing custom
// sources, codecs or fault handling use pump.New directly.
func Copy(ctx context.Context, dst io.WriteCloser, src io.Reader, cfg pump.Config) error {
	sess, err := pump.New(stream.NewReaderSource(src, 0), dst, cfg)
	if err != nil {
		return err
	}
	return sess.Run(ctx)
}
