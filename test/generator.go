package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/szibis/logship/internal/compression"
)

var levels = []string{"debug", "info", "info", "info", "warn", "error"}

// generator posts batches of JSON log lines to a logship receiver.
type generator struct {
	endpoint    string
	client      *http.Client
	compression compression.Type
	services    []string
	batchSize   int
	rng         *rand.Rand

	seq      atomic.Int64
	sent     atomic.Int64
	rejected atomic.Int64
}

func main() {
	endpoint := getEnv("LOGSHIP_ENDPOINT", "http://localhost:4318/v1/logs")
	intervalStr := getEnv("INTERVAL", "1s")
	servicesStr := getEnv("SERVICES", "payment-api,order-api,inventory-api")
	batchSize := getEnvInt("BATCH_SIZE", 100)
	enableBurstTraffic := getEnvBool("ENABLE_BURST_TRAFFIC", true)
	burstSize := getEnvInt("BURST_SIZE", 5000)
	burstIntervalSec := getEnvInt("BURST_INTERVAL_SEC", 30)

	ct, err := compression.ParseType(getEnv("COMPRESSION", "gzip"))
	if err != nil {
		log.Fatalf("Invalid compression: %v", err)
	}
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		log.Fatalf("Invalid interval: %v", err)
	}

	g := &generator{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: 10 * time.Second},
		compression: ct,
		services:    strings.Split(servicesStr, ","),
		batchSize:   batchSize,
		rng:         rand.New(rand.NewSource(time.Now().UnixNano())),
	}

	log.Printf("Starting log generator")
	log.Printf("  Endpoint: %s", endpoint)
	log.Printf("  Interval: %s", interval)
	log.Printf("  Batch size: %d", batchSize)
	log.Printf("  Compression: %s", ct)
	log.Printf("  Services: %v", g.services)
	log.Printf("  Burst traffic: %v (size: %d, interval: %ds)", enableBurstTraffic, burstSize, burstIntervalSec)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	burstTicker := time.NewTicker(time.Duration(burstIntervalSec) * time.Second)
	defer burstTicker.Stop()

	iteration := 0
	for {
		select {
		case <-ctx.Done():
			log.Printf("Stopping: sent=%d rejected=%d", g.sent.Load(), g.rejected.Load())
			return

		case <-ticker.C:
			iteration++
			if err := g.post(ctx, g.batch(g.batchSize)); err != nil {
				log.Printf("Failed to post batch: %v", err)
			}
			if iteration%10 == 0 {
				log.Printf("Generated %d batches, sent=%d rejected=%d", iteration, g.sent.Load(), g.rejected.Load())
			}

		case <-burstTicker.C:
			if enableBurstTraffic {
				log.Printf("Generating burst traffic: %d records", burstSize)
				start := time.Now()
				for remaining := burstSize; remaining > 0; remaining -= g.batchSize {
					n := g.batchSize
					if remaining < n {
						n = remaining
					}
					if err := g.post(ctx, g.batch(n)); err != nil {
						log.Printf("Failed to post burst batch: %v", err)
						break
					}
				}
				log.Printf("Burst complete in %v", time.Since(start))
			}
		}
	}
}

// batch renders n newline-delimited records. Every record carries a
// monotonically increasing seq so a collector can detect gaps.
func (g *generator) batch(n int) []byte {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for i := 0; i < n; i++ {
		_ = enc.Encode(map[string]interface{}{
			"ts":          time.Now().UTC().Format(time.RFC3339Nano),
			"seq":         g.seq.Add(1),
			"service":     g.services[g.rng.Intn(len(g.services))],
			"level":       levels[g.rng.Intn(len(levels))],
			"message":     "request handled",
			"duration_ms": g.rng.Intn(500),
		})
	}
	return buf.Bytes()
}

func (g *generator) post(ctx context.Context, body []byte) error {
	lines := int64(bytes.Count(body, []byte("\n")))
	payload, err := compression.Compress(body, compression.Config{Type: g.compression})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if enc := g.compression.ContentEncoding(); enc != "" {
		req.Header.Set("Content-Encoding", enc)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.rejected.Add(lines)
		return err
	}
	defer resp.Body.Close()

	var out struct {
		Accepted int64 `json:"accepted"`
		Dropped  int64 `json:"dropped"`
	}
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.rejected.Add(lines)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return err
	}
	g.sent.Add(out.Accepted)
	g.rejected.Add(out.Dropped)
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return b
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return i
	}
	return defaultValue
}
