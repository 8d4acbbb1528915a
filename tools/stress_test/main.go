package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	cbarrow "github.com/VanDung-dev/ColumnBridge/arrow"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/api"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/docopt/docopt.go"
	"go.uber.org/zap"
)

const usage = `ColumnBridge probe stress test.

Usage:
  stress_test [--addr=<addr>] [-c <workers>] [-d <duration>] [--rows=<n>] [--token=<token>] [-o <file>]
  stress_test (-h | --help)

Options:
  -h --help         Show this screen.
  --addr=<addr>     Probe server address [default: 127.0.0.1:50051].
  -c <workers>      Number of concurrent connections [default: 10].
  -d <duration>     Duration of the test [default: 30s].
  --rows=<n>        Rows per probed batch [default: 1000].
  --token=<token>   Authentication token (enables the handshake).
  -o <file>         Write a JSON report to file.
`

// StressTestConfig holds configuration for the stress test.
type StressTestConfig struct {
	Address     string
	Concurrency int
	Duration    time.Duration
	Rows        int
	AuthToken   string
	ReportFile  string
}

// StressTestResult holds the results of a stress test.
type StressTestResult struct {
	TotalRequests  int64
	SuccessfulReqs int64
	FailedReqs     int64
	Unverified     int64
	TotalDuration  time.Duration
	AvgLatency     time.Duration
	MinLatency     time.Duration
	MaxLatency     time.Duration
	RequestsPerSec float64
}

// counters are shared by all workers.
type counters struct {
	total, success, failed, unverified int64
	latencySum                         int64
	minLatency, maxLatency             int64
}

func (c *counters) observe(lat time.Duration) {
	atomic.AddInt64(&c.success, 1)
	atomic.AddInt64(&c.latencySum, int64(lat))
	l := int64(lat)
	for {
		old := atomic.LoadInt64(&c.minLatency)
		if l >= old || atomic.CompareAndSwapInt64(&c.minLatency, old, l) {
			break
		}
	}
	for {
		old := atomic.LoadInt64(&c.maxLatency)
		if l <= old || atomic.CompareAndSwapInt64(&c.maxLatency, old, l) {
			break
		}
	}
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	config, err := parseArgs()
	if err != nil {
		logger.Fatal("invalid arguments", zap.Error(err))
	}

	payload, err := buildPayload(config.Rows)
	if err != nil {
		logger.Fatal("failed to build payload", zap.Error(err))
	}

	fmt.Println("=== ColumnBridge Probe Stress Test ===")
	fmt.Printf("Target: %s\n", config.Address)
	fmt.Printf("Concurrency: %d workers\n", config.Concurrency)
	fmt.Printf("Duration: %v\n", config.Duration)
	fmt.Printf("Payload: %d rows, %d bytes\n", config.Rows, len(payload))
	fmt.Printf("Auth: %v\n", config.AuthToken != "")
	fmt.Println()

	result := runStressTest(config, payload, logger)
	printResults(result)

	if config.ReportFile != "" {
		if err := saveReport(config, result); err != nil {
			logger.Error("failed to write report", zap.Error(err))
		} else {
			fmt.Printf("Report saved to: %s\n", config.ReportFile)
		}
	}
}

func parseArgs() (StressTestConfig, error) {
	opts, err := docopt.ParseDoc(usage)
	if err != nil {
		return StressTestConfig{}, err
	}

	var config StressTestConfig
	config.Address, _ = opts.String("--addr")
	if config.Concurrency, err = opts.Int("-c"); err != nil {
		return config, fmt.Errorf("-c: %w", err)
	}
	if config.Rows, err = opts.Int("--rows"); err != nil {
		return config, fmt.Errorf("--rows: %w", err)
	}
	d, _ := opts.String("-d")
	if config.Duration, err = time.ParseDuration(d); err != nil {
		return config, fmt.Errorf("-d: %w", err)
	}
	if v, ok := opts["--token"].(string); ok {
		config.AuthToken = v
	}
	if v, ok := opts["-o"].(string); ok {
		config.ReportFile = v
	}
	return config, nil
}

// buildPayload encodes one batch mixing the column shapes the probe exports.
func buildPayload(rows int) ([]byte, error) {
	mem := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "id", Type: arrow.PrimitiveTypes.Int64},
		{Name: "score", Type: arrow.PrimitiveTypes.Float64, Nullable: true},
		{Name: "label", Type: arrow.BinaryTypes.String},
		{Name: "flag", Type: arrow.FixedWidthTypes.Boolean},
		{Name: "ts", Type: arrow.FixedWidthTypes.Date64},
	}, nil)

	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for i := 0; i < rows; i++ {
		b.Field(0).(*array.Int64Builder).Append(int64(i))
		if i%7 == 0 {
			b.Field(1).AppendNull()
		} else {
			b.Field(1).(*array.Float64Builder).Append(float64(i) / 3)
		}
		b.Field(2).(*array.StringBuilder).Append(fmt.Sprintf("row-%d", i))
		b.Field(3).(*array.BooleanBuilder).Append(i%2 == 0)
		b.Field(4).(*array.Date64Builder).Append(arrow.Date64(1700000000000 + int64(i)))
	}
	rec := b.NewRecord()
	defer rec.Release()

	return cbarrow.NewIPCCodec(mem).Encode(rec)
}

func runStressTest(config StressTestConfig, payload []byte, logger *zap.Logger) StressTestResult {
	c := &counters{minLatency: 1<<63 - 1}
	stop := make(chan struct{})
	var wg sync.WaitGroup

	startTime := time.Now()
	for i := 0; i < config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runWorker(config, payload, stop, c, logger.With(zap.Int("worker", i)))
		}()
	}

	time.Sleep(config.Duration)
	close(stop)
	wg.Wait()

	duration := time.Since(startTime)
	result := StressTestResult{
		TotalRequests:  atomic.LoadInt64(&c.total),
		SuccessfulReqs: atomic.LoadInt64(&c.success),
		FailedReqs:     atomic.LoadInt64(&c.failed),
		Unverified:     atomic.LoadInt64(&c.unverified),
		TotalDuration:  duration,
		MaxLatency:     time.Duration(atomic.LoadInt64(&c.maxLatency)),
	}
	if result.SuccessfulReqs > 0 {
		result.AvgLatency = time.Duration(atomic.LoadInt64(&c.latencySum) / result.SuccessfulReqs)
		result.MinLatency = time.Duration(atomic.LoadInt64(&c.minLatency))
	}
	result.RequestsPerSec = float64(result.TotalRequests) / duration.Seconds()
	return result
}

func runWorker(config StressTestConfig, payload []byte, stop chan struct{}, c *counters, logger *zap.Logger) {
	var client *api.Client
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	for {
		select {
		case <-stop:
			return
		default:
		}

		if client == nil {
			var err error
			client, err = api.Dial(config.Address, config.AuthToken, 5*time.Second)
			if err != nil {
				atomic.AddInt64(&c.total, 1)
				atomic.AddInt64(&c.failed, 1)
				logger.Debug("dial failed", zap.Error(err))
				// Small sleep on error to avoid hammering
				time.Sleep(10 * time.Millisecond)
				continue
			}
		}

		start := time.Now()
		resp, err := client.Probe(payload)
		atomic.AddInt64(&c.total, 1)
		if err != nil {
			atomic.AddInt64(&c.failed, 1)
			logger.Debug("probe failed", zap.Error(err))
			client.Close()
			client = nil
			continue
		}
		c.observe(time.Since(start))
		if !resp.OK() {
			atomic.AddInt64(&c.unverified, 1)
		}
	}
}

func percent(n, total int64) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func printResults(result StressTestResult) {
	fmt.Println("=== Results ===")
	fmt.Printf("Duration:        %v\n", result.TotalDuration.Round(time.Millisecond))
	fmt.Printf("Total Requests:  %d\n", result.TotalRequests)
	fmt.Printf("Successful:      %d (%.2f%%)\n", result.SuccessfulReqs, percent(result.SuccessfulReqs, result.TotalRequests))
	fmt.Printf("Failed:          %d (%.2f%%)\n", result.FailedReqs, percent(result.FailedReqs, result.TotalRequests))
	fmt.Printf("Unverified:      %d\n", result.Unverified)
	fmt.Printf("Requests/sec:    %.2f\n", result.RequestsPerSec)
	fmt.Printf("Avg Latency:     %v\n", result.AvgLatency.Round(time.Microsecond))
	fmt.Printf("Min Latency:     %v\n", result.MinLatency.Round(time.Microsecond))
	fmt.Printf("Max Latency:     %v\n", result.MaxLatency.Round(time.Microsecond))
}

func saveReport(config StressTestConfig, result StressTestResult) error {
	report := map[string]any{
		"config": map[string]any{
			"address":     config.Address,
			"concurrency": config.Concurrency,
			"duration":    config.Duration.String(),
			"rows":        config.Rows,
		},
		"results": map[string]any{
			"total_requests":   result.TotalRequests,
			"successful":       result.SuccessfulReqs,
			"failed":           result.FailedReqs,
			"unverified":       result.Unverified,
			"requests_per_sec": result.RequestsPerSec,
			"avg_latency_ms":   float64(result.AvgLatency.Microseconds()) / 1000,
			"min_latency_ms":   float64(result.MinLatency.Microseconds()) / 1000,
			"max_latency_ms":   float64(result.MaxLatency.Microseconds()) / 1000,
		},
		"timestamp": time.Now().Format(time.RFC3339),
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(config.ReportFile, data, 0o644)
}
