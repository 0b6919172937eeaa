package remote

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/fornax-navo/go-fits/remote"

// span attribute keys for source reads
const (
	urlKey    = attribute.Key("source.url")
	offsetKey = attribute.Key("source.offset")
	lengthKey = attribute.Key("source.length")
	readKey   = attribute.Key("source.bytes_read")
)

// tracedSource instruments a source, adding a trace span for each backend
// read. Wrap outside the block cache so that only reads that actually hit
// the network are recorded, or inside it to see every logical read.
type tracedSource struct {
	src    Source
	ctx    context.Context
	tracer trace.Tracer
}

func newTracedSource(ctx context.Context, src Source, tp trace.TracerProvider) Source {
	return &tracedSource{
		src:    src,
		ctx:    ctx,
		tracer: tp.Tracer(tracerName),
	}
}

func (s *tracedSource) ReadAt(p []byte, off int64) (int, error) {
	_, span := s.tracer.Start(s.ctx, "source.ReadAt", trace.WithAttributes(
		urlKey.String(s.src.URL()),
		offsetKey.Int64(off),
		lengthKey.Int(len(p)),
	))
	defer span.End()

	n, err := s.src.ReadAt(p, off)

	span.SetAttributes(readKey.Int(n))

	if err != nil {
		span.RecordError(err)
	}

	return n, err
}

func (s *tracedSource) Size() int64  { return s.src.Size() }
func (s *tracedSource) URL() string  { return s.src.URL() }
func (s *tracedSource) Name() string { return s.src.Name() }
func (s *tracedSource) Close() error { return s.src.Close() }
