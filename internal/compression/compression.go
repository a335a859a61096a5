// Package compression provides streaming encoders and decoders for HTTP
// request bodies.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Type represents a compression algorithm.
type Type string

const (
	// TypeNone means no compression.
	TypeNone Type = "none"
	// TypeGzip uses gzip compression.
	TypeGzip Type = "gzip"
	// TypeZstd uses zstd compression.
	TypeZstd Type = "zstd"
	// TypeSnappy uses snappy block compression.
	TypeSnappy Type = "snappy"
	// TypeZlib uses zlib compression.
	TypeZlib Type = "zlib"
	// TypeDeflate uses raw deflate compression.
	TypeDeflate Type = "deflate"
	// TypeLZ4 uses lz4 frame compression.
	TypeLZ4 Type = "lz4"
)

// Level represents compression level settings.
type Level int

const (
	// LevelDefault uses the default compression level for the algorithm.
	LevelDefault Level = 0
	// LevelFastest uses the fastest compression (lowest ratio).
	LevelFastest Level = 1
	// LevelBest uses the best compression (highest ratio).
	LevelBest Level = 9
)

// zstd levels
const (
	ZstdSpeedFastest           Level = 1
	ZstdSpeedDefault           Level = 3
	ZstdSpeedBetterCompression Level = 6
	ZstdSpeedBestCompression   Level = 11
)

// Config holds compression configuration.
type Config struct {
	Type  Type
	Level Level
}

// ParseType parses a compression type string.
func ParseType(s string) (Type, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return TypeNone, nil
	case "gzip":
		return TypeGzip, nil
	case "zstd":
		return TypeZstd, nil
	case "snappy":
		return TypeSnappy, nil
	case "zlib":
		return TypeZlib, nil
	case "deflate":
		return TypeDeflate, nil
	case "lz4":
		return TypeLZ4, nil
	default:
		return TypeNone, fmt.Errorf("unsupported compression type: %s", s)
	}
}

// ContentEncoding returns the HTTP Content-Encoding header value for the type.
func (t Type) ContentEncoding() string {
	switch t {
	case TypeGzip, TypeZstd, TypeSnappy, TypeZlib, TypeDeflate, TypeLZ4:
		return string(t)
	default:
		return ""
	}
}

// ParseContentEncoding maps an HTTP Content-Encoding header value to a type.
// Unknown encodings map to TypeNone.
func ParseContentEncoding(encoding string) Type {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "gzip", "x-gzip":
		return TypeGzip
	case "zstd":
		return TypeZstd
	case "snappy":
		return TypeSnappy
	case "zlib":
		return TypeZlib
	case "deflate":
		return TypeDeflate
	case "lz4":
		return TypeLZ4
	default:
		return TypeNone
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

// NewWriter returns an encoder writing to w. Close must be called to flush
// the final frame; it does not close w.
func NewWriter(w io.Writer, cfg Config) (io.WriteCloser, error) {
	switch cfg.Type {
	case TypeNone, "":
		return nopWriteCloser{w}, nil
	case TypeGzip:
		return getGzipWriter(w, cfg.Level)
	case TypeZstd:
		return getZstdWriter(w, cfg.Level)
	case TypeSnappy:
		return &snappyBlockWriter{dst: w}, nil
	case TypeZlib:
		zw, err := zlib.NewWriterLevel(w, flateLevel(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib writer: %w", err)
		}
		return zw, nil
	case TypeDeflate:
		fw, err := flate.NewWriter(w, flateLevel(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("failed to create deflate writer: %w", err)
		}
		return fw, nil
	case TypeLZ4:
		lw := lz4.NewWriter(w)
		if cfg.Level != LevelDefault {
			if err := lw.Apply(lz4.CompressionLevelOption(lz4Level(cfg.Level))); err != nil {
				return nil, fmt.Errorf("failed to set lz4 level: %w", err)
			}
		}
		return lw, nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", cfg.Type)
	}
}

// NewReader returns a decoder reading from r.
func NewReader(r io.Reader, t Type) (io.ReadCloser, error) {
	switch t {
	case TypeNone, "":
		return io.NopCloser(r), nil
	case TypeGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		return gr, nil
	case TypeZstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		return dec.IOReadCloser(), nil
	case TypeSnappy:
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}
		decoded, err := snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode snappy body: %w", err)
		}
		return io.NopCloser(bytes.NewReader(decoded)), nil
	case TypeZlib:
		zr, err := zlib.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to create zlib reader: %w", err)
		}
		return zr, nil
	case TypeDeflate:
		return flate.NewReader(r), nil
	case TypeLZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("unsupported compression type: %s", t)
	}
}

// Compress encodes data in one call.
func Compress(data []byte, cfg Config) ([]byte, error) {
	if cfg.Type == TypeNone || cfg.Type == "" {
		return data, nil
	}
	var buf bytes.Buffer
	w, err := NewWriter(&buf, cfg)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(data); err != nil {
		return nil, fmt.Errorf("failed to write %s data: %w", cfg.Type, err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("failed to close %s writer: %w", cfg.Type, err)
	}
	return buf.Bytes(), nil
}

// Decompress decodes data in one call.
func Decompress(data []byte, t Type) ([]byte, error) {
	if t == TypeNone || t == "" {
		return data, nil
	}
	r, err := NewReader(bytes.NewReader(data), t)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func flateLevel(level Level) int {
	if level == LevelDefault {
		return flate.DefaultCompression
	}
	return int(level)
}

func lz4Level(level Level) lz4.CompressionLevel {
	switch {
	case level <= LevelFastest:
		return lz4.Fast
	case level >= LevelBest:
		return lz4.Level9
	default:
		return lz4.CompressionLevel(1 << (8 + int(level)))
	}
}

// snappyBlockWriter buffers the body and block-encodes it on Close. HTTP
// receivers expect the block format rather than the framed stream.
type snappyBlockWriter struct {
	dst io.Writer
	buf bytes.Buffer
}

func (s *snappyBlockWriter) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *snappyBlockWriter) Close() error {
	_, err := s.dst.Write(snappy.Encode(nil, s.buf.Bytes()))
	return err
}
