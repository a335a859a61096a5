package compression

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

var (
	poolGets atomic.Int64
	poolPuts atomic.Int64
	poolNews atomic.Int64

	gzipPools sync.Map // Level -> *sync.Pool
	zstdPools sync.Map // Level -> *sync.Pool
)

func levelPool(pools *sync.Map, level Level) *sync.Pool {
	if p, ok := pools.Load(level); ok {
		return p.(*sync.Pool)
	}
	p, _ := pools.LoadOrStore(level, &sync.Pool{})
	return p.(*sync.Pool)
}

// pooledGzip returns the encoder to its pool on Close.
type pooledGzip struct {
	*gzip.Writer
	pool *sync.Pool
}

func (p *pooledGzip) Close() error {
	if p.pool == nil {
		return nil
	}
	err := p.Writer.Close()
	p.Writer.Reset(io.Discard)
	p.pool.Put(p.Writer)
	poolPuts.Add(1)
	p.pool = nil
	return err
}

func getGzipWriter(w io.Writer, level Level) (io.WriteCloser, error) {
	poolGets.Add(1)
	pool := levelPool(&gzipPools, level)
	if gw, ok := pool.Get().(*gzip.Writer); ok {
		gw.Reset(w)
		return &pooledGzip{Writer: gw, pool: pool}, nil
	}
	poolNews.Add(1)
	gw, err := gzip.NewWriterLevel(w, flateLevel(level))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip writer: %w", err)
	}
	return &pooledGzip{Writer: gw, pool: pool}, nil
}

type pooledZstd struct {
	*zstd.Encoder
	pool *sync.Pool
}

func (p *pooledZstd) Close() error {
	if p.pool == nil {
		return nil
	}
	err := p.Encoder.Close()
	p.Encoder.Reset(io.Discard)
	p.pool.Put(p.Encoder)
	poolPuts.Add(1)
	p.pool = nil
	return err
}

func getZstdWriter(w io.Writer, level Level) (io.WriteCloser, error) {
	poolGets.Add(1)
	pool := levelPool(&zstdPools, level)
	if enc, ok := pool.Get().(*zstd.Encoder); ok {
		enc.Reset(w)
		return &pooledZstd{Encoder: enc, pool: pool}, nil
	}
	poolNews.Add(1)
	enc, err := zstd.NewWriter(w,
		zstd.WithEncoderLevel(zstdLevel(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	return &pooledZstd{Encoder: enc, pool: pool}, nil
}

func zstdLevel(level Level) zstd.EncoderLevel {
	switch level {
	case ZstdSpeedFastest:
		return zstd.SpeedFastest
	case ZstdSpeedBetterCompression:
		return zstd.SpeedBetterCompression
	case ZstdSpeedBestCompression:
		return zstd.SpeedBestCompression
	default:
		return zstd.SpeedDefault
	}
}
