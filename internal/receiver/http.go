// Package receiver accepts newline-delimited log records over HTTP and hands
// them to an Emitter.
package receiver

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/szibis/logship/internal/auth"
	"github.com/szibis/logship/internal/compression"
	"github.com/szibis/logship/internal/logging"
	"github.com/szibis/logship/internal/reader"
	tlspkg "github.com/szibis/logship/internal/tls"
)

// DefaultPath is the ingest endpoint.
const DefaultPath = "/v1/logs"

// DefaultMaxBodyBytes bounds a request body when none is configured.
const DefaultMaxBodyBytes = 16 << 20

// Emitter stores one record without blocking and reports whether it was
// kept. Implemented by spool.Writer and the in-memory shipper.
type Emitter interface {
	Emit(record string) bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// MaxBodyBytes limits the request body, before and after decompression.
	MaxBodyBytes      int64
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
}

// Config holds the receiver configuration.
type Config struct {
	Addr string
	// Path defaults to /v1/logs.
	Path   string
	TLS    tlspkg.ServerConfig
	Auth   auth.ServerConfig
	Server ServerConfig
	// ValidateJSON drops lines that are not valid JSON.
	ValidateJSON bool
}

// Response is the body of a 202 answer.
type Response struct {
	Accepted int `json:"accepted"`
	Dropped  int `json:"dropped"`
}

// HTTPReceiver receives records via HTTP.
type HTTPReceiver struct {
	server       *http.Server
	emitter      Emitter
	addr         string
	path         string
	tlsConfig    *tls.Config
	maxBodyBytes int64
	validateJSON bool

	mu       sync.Mutex
	listener net.Listener
}

var bufferPool = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// New creates a receiver. It fails when the TLS material cannot be loaded.
func New(cfg Config, emitter Emitter) (*HTTPReceiver, error) {
	r := &HTTPReceiver{
		emitter:      emitter,
		addr:         cfg.Addr,
		path:         cfg.Path,
		maxBodyBytes: cfg.Server.MaxBodyBytes,
		validateJSON: cfg.ValidateJSON,
	}
	if r.path == "" {
		r.path = DefaultPath
	}
	if r.maxBodyBytes <= 0 {
		r.maxBodyBytes = DefaultMaxBodyBytes
	}

	if cfg.TLS.Enabled {
		tlsConfig, err := tlspkg.NewServerTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to create receiver TLS config: %w", err)
		}
		r.tlsConfig = tlsConfig
	}

	mux := http.NewServeMux()
	mux.HandleFunc(r.path, r.handleLogs)

	var handler http.Handler = mux
	if cfg.Auth.Enabled {
		handler = auth.HTTPMiddleware(cfg.Auth, mux)
	}

	readHeaderTimeout := cfg.Server.ReadHeaderTimeout
	if readHeaderTimeout == 0 {
		readHeaderTimeout = 1 * time.Minute
	}
	writeTimeout := cfg.Server.WriteTimeout
	if writeTimeout == 0 {
		writeTimeout = 30 * time.Second
	}
	idleTimeout := cfg.Server.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = 1 * time.Minute
	}

	r.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		TLSConfig:         r.tlsConfig,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return r, nil
}

// Handler returns the receiver's HTTP handler, auth included.
func (r *HTTPReceiver) Handler() http.Handler {
	return r.server.Handler
}

func (r *HTTPReceiver) handleLogs(w http.ResponseWriter, req *http.Request) {
	requestsTotal.Inc()

	if req.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !supportedContentType(req.Header.Get("Content-Type")) {
		errorsTotal.WithLabelValues("content_type").Inc()
		http.Error(w, "Unsupported content type, expected application/x-ndjson", http.StatusUnsupportedMediaType)
		return
	}

	encoding := req.Header.Get("Content-Encoding")
	ctype := compression.ParseContentEncoding(encoding)
	if ctype == compression.TypeNone && encoding != "" && !strings.EqualFold(encoding, "identity") {
		errorsTotal.WithLabelValues("content_encoding").Inc()
		http.Error(w, "Unsupported content encoding", http.StatusUnsupportedMediaType)
		return
	}

	body := bufferPool.Get().(*bytes.Buffer)
	body.Reset()
	defer bufferPool.Put(body)

	if err := r.readBody(w, req, ctype, body); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge), errors.Is(err, errBodyTooLarge):
			errorsTotal.WithLabelValues("too_large").Inc()
			http.Error(w, "Request body too large", http.StatusRequestEntityTooLarge)
		case ctype != compression.TypeNone:
			errorsTotal.WithLabelValues("decompress").Inc()
			logging.Warn("failed to decompress ingest request", logging.F(
				"encoding", encoding,
				"error", err.Error(),
			))
			http.Error(w, "Failed to decompress body", http.StatusBadRequest)
		default:
			errorsTotal.WithLabelValues("read").Inc()
			http.Error(w, "Failed to read body", http.StatusBadRequest)
		}
		return
	}

	resp := r.emitLines(body.Bytes())
	recordsTotal.WithLabelValues("accepted").Add(float64(resp.Accepted))
	recordsTotal.WithLabelValues("dropped").Add(float64(resp.Dropped))
	requestBytes.Observe(float64(body.Len()))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(resp)
}

var errBodyTooLarge = errors.New("decompressed body too large")

func (r *HTTPReceiver) readBody(w http.ResponseWriter, req *http.Request, ctype compression.Type, dst *bytes.Buffer) error {
	raw := http.MaxBytesReader(w, req.Body, r.maxBodyBytes)
	defer raw.Close()

	dec, err := compression.NewReader(raw, ctype)
	if err != nil {
		return err
	}
	defer dec.Close()

	// One byte past the limit tells an exact fit from an overflow.
	n, err := dst.ReadFrom(io.LimitReader(dec, r.maxBodyBytes+1))
	if err != nil {
		return err
	}
	if n > r.maxBodyBytes {
		return errBodyTooLarge
	}
	return nil
}

// emitLines hands every non-empty line to the emitter.
func (r *HTTPReceiver) emitLines(body []byte) Response {
	var resp Response
	for len(body) > 0 {
		line := body
		if i := bytes.IndexByte(body, '\n'); i >= 0 {
			line, body = body[:i], body[i+1:]
		} else {
			body = nil
		}
		line = bytes.TrimSuffix(line, []byte{'\r'})
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		if r.validateJSON && !json.Valid(line) {
			reader.CountDropped(reader.ReasonInvalid, 1)
			resp.Dropped++
			continue
		}
		if r.emitter.Emit(string(line)) {
			resp.Accepted++
		} else {
			resp.Dropped++
		}
	}
	return resp
}

func supportedContentType(ct string) bool {
	if ct == "" {
		return true
	}
	mediaType, _, _ := strings.Cut(ct, ";")
	switch strings.ToLower(strings.TrimSpace(mediaType)) {
	case "application/x-ndjson", "application/jsonl", "application/json", "text/plain":
		return true
	}
	return false
}

// Start listens and serves until Stop. It returns http.ErrServerClosed after
// a graceful stop.
func (r *HTTPReceiver) Start() error {
	ln, err := net.Listen("tcp", r.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", r.addr, err)
	}
	r.mu.Lock()
	r.listener = ln
	r.mu.Unlock()

	logging.Info("HTTP receiver started", logging.F(
		"addr", ln.Addr().String(),
		"path", r.path,
		"tls", r.tlsConfig != nil,
		"validate_json", r.validateJSON,
		"max_body_bytes", r.maxBodyBytes,
	))
	if r.tlsConfig != nil {
		return r.server.ServeTLS(ln, "", "")
	}
	return r.server.Serve(ln)
}

// Addr returns the bound address once Start is listening, or the configured
// one before that.
func (r *HTTPReceiver) Addr() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.listener != nil {
		return r.listener.Addr().String()
	}
	return r.addr
}

// Stop gracefully stops the HTTP server.
func (r *HTTPReceiver) Stop(ctx context.Context) error {
	return r.server.Shutdown(ctx)
}

// Check returns nil if the receiver port is accepting connections.
func (r *HTTPReceiver) Check() error {
	addr := r.Addr()
	conn, err := net.DialTimeout("tcp", addr, 1*time.Second)
	if err != nil {
		return fmt.Errorf("receiver not reachable on %s: %w", addr, err)
	}
	conn.Close()
	return nil
}
