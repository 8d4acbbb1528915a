package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	cbarrow "github.com/VanDung-dev/ColumnBridge/arrow"
	"github.com/VanDung-dev/ColumnBridge/bridge"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/api"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/config"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/docopt/docopt.go"
	"go.uber.org/zap"
)

// Version information
const (
	Version = "0.1.0"
	Name    = "columnbridge"
)

const usage = `ColumnBridge: Arrow C Data Interface exporter tools.

Usage:
  columnbridge inspect <file> [-v]
  columnbridge verify <file> [-v]
  columnbridge probe <file> [--addr=<addr>] [--token=<token>] [-v]
  columnbridge formats
  columnbridge (-h | --help)
  columnbridge --version

Input files ending in .json are column documents; anything else is read as
an Arrow IPC file.

Options:
  -h --help          Show this screen.
  --version          Show version.
  -v                 Debug logging.
  --addr=<addr>      Probe server address [default: 127.0.0.1:50051].
  --token=<token>    Probe server auth token.
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], Name+" "+Version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	level := "warn"
	if v, _ := opts.Bool("-v"); v {
		level = "debug"
	}
	logger, err := config.NewLogger(config.LogConfig{Level: level, Development: true})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	if err := run(opts, os.Stdout, logger); err != nil {
		logger.Error("command failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(opts docopt.Opts, out io.Writer, logger *zap.Logger) error {
	if ok, _ := opts.Bool("formats"); ok {
		return printFormats(out)
	}

	file, _ := opts.String("<file>")
	switch {
	case isSet(opts, "inspect"):
		batches, err := loadBatches(file)
		if err != nil {
			return err
		}
		return inspect(out, batches, logger)
	case isSet(opts, "verify"):
		batches, err := loadBatches(file)
		if err != nil {
			return err
		}
		return verify(out, batches, logger)
	case isSet(opts, "probe"):
		addr, _ := opts.String("--addr")
		token, _ := opts["--token"].(string)
		return probe(out, file, addr, token)
	}
	return fmt.Errorf("no command given")
}

func isSet(opts docopt.Opts, cmd string) bool {
	ok, _ := opts.Bool(cmd)
	return ok
}

// loadBatches reads a JSON column document or an Arrow IPC file.
func loadBatches(path string) ([]*data.RecordBatch, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		rb, err := data.JSONToRecordBatch(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return []*data.RecordBatch{rb}, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	_, records, err := cbarrow.NewIPCCodec(nil).DecodeFile(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer cbarrow.ReleaseAll(records)

	batches := make([]*data.RecordBatch, 0, len(records))
	for i, rec := range records {
		rb, err := data.RecordFromArrow(rec)
		if err != nil {
			return nil, fmt.Errorf("%s: record %d: %w", path, i, err)
		}
		batches = append(batches, rb)
	}
	return batches, nil
}

func inspect(out io.Writer, batches []*data.RecordBatch, logger *zap.Logger) error {
	e := ffi.NewExporter(ffi.WithLogger(logger))
	var reports []ffi.NodeReport
	for _, rb := range batches {
		for i, f := range rb.Fields() {
			var arr ffi.CArrowArray
			var schema ffi.CArrowSchema
			if err := e.Export(rb.Column(i), f.Name, &arr, &schema); err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			report, err := ffi.Describe(&arr, &schema)
			ffi.ReleaseCArrowArray(&arr)
			ffi.ReleaseCArrowSchema(&schema)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			reports = append(reports, report)
		}
	}
	logger.Debug("inspected", zap.Int("columns", len(reports)), zap.Int("live_exports", ffi.LiveHandles()))
	return writeJSON(out, reports)
}

func verify(out io.Writer, batches []*data.RecordBatch, logger *zap.Logger) error {
	e := ffi.NewExporter(ffi.WithLogger(logger))
	var results []bridge.VerifyResult
	failed := 0
	for _, rb := range batches {
		for i, f := range rb.Fields() {
			start := time.Now()
			res, err := bridge.Verify(e, f.Name, rb.Column(i))
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			logger.Debug("verified", zap.String("column", f.Name), zap.Bool("ok", res.OK()), zap.Duration("took", time.Since(start)))
			if !res.OK() {
				failed++
			}
			results = append(results, res)
		}
	}
	if err := writeJSON(out, results); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d columns failed verification", failed, len(results))
	}
	return nil
}

func probe(out io.Writer, path, addr, token string) error {
	batches, err := loadBatches(path)
	if err != nil {
		return err
	}
	records := make([]arrow.Record, 0, len(batches))
	defer func() {
		for _, r := range records {
			r.Release()
		}
	}()
	for _, rb := range batches {
		rec, err := data.RecordToArrow(rb, memory.DefaultAllocator)
		if err != nil {
			return err
		}
		records = append(records, rec)
	}
	payload, err := cbarrow.NewIPCCodec(nil).Encode(records...)
	if err != nil {
		return err
	}

	client, err := api.Dial(addr, token, 5*time.Second)
	if err != nil {
		return err
	}
	defer client.Close()

	resp, err := client.Probe(payload)
	if err != nil {
		return err
	}
	if err := writeJSON(out, resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("probe: %s", resp.Error)
	}
	return nil
}

func printFormats(out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TYPE\tFORMAT")
	for _, e := range layout.FormatTable() {
		fmt.Fprintf(w, "%s\t%s\n", e.Type, e.Format)
	}
	return w.Flush()
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
