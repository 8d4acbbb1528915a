package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"time"

	cbarrow "github.com/VanDung-dev/ColumnBridge/arrow"
	"github.com/VanDung-dev/ColumnBridge/bridge"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/data"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/ffi"
	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrEmptyPayload is returned for a zero-length request frame.
var ErrEmptyPayload = errors.New("received empty data")

// Recorder receives probe service events. api.Metrics implements it.
type Recorder interface {
	RecordBatch(columns int, success bool, duration time.Duration)
	RecordConnection()
}

type nopRecorder struct{}

func (nopRecorder) RecordBatch(int, bool, time.Duration) {}
func (nopRecorder) RecordConnection()                    {}

// ColumnReport is the probe result for one column.
type ColumnReport struct {
	Name   string              `json:"name"`
	Format string              `json:"format"`
	Layout ffi.NodeReport      `json:"layout"`
	Verify bridge.VerifyResult `json:"verify"`
}

// BatchReport is the probe result for one record batch.
type BatchReport struct {
	Rows    int            `json:"rows"`
	Columns []ColumnReport `json:"columns"`
}

// ProbeResponse is the JSON reply to a probe request.
type ProbeResponse struct {
	Batches []BatchReport `json:"batches,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// OK reports whether every column verified.
func (r *ProbeResponse) OK() bool {
	if r.Error != "" {
		return false
	}
	for _, b := range r.Batches {
		for _, c := range b.Columns {
			if !c.Verify.OK() {
				return false
			}
		}
	}
	return true
}

// ArrowHandler exports the columns of received IPC batches through the
// C Data Interface and reports their layout.
type ArrowHandler struct {
	codec       *cbarrow.IPCCodec
	exporter    *ffi.Exporter
	parallelism int
	recorder    Recorder
	logger      *zap.Logger
}

// HandlerOption configures an ArrowHandler.
type HandlerOption func(*ArrowHandler)

// WithExporter sets the exporter used for every column.
func WithExporter(e *ffi.Exporter) HandlerOption {
	return func(h *ArrowHandler) { h.exporter = e }
}

// WithParallelism bounds how many columns of a batch are exported at once.
func WithParallelism(n int) HandlerOption {
	return func(h *ArrowHandler) {
		if n > 0 {
			h.parallelism = n
		}
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) HandlerOption {
	return func(h *ArrowHandler) {
		if r != nil {
			h.recorder = r
		}
	}
}

// WithHandlerLogger sets the logger.
func WithHandlerLogger(l *zap.Logger) HandlerOption {
	return func(h *ArrowHandler) {
		if l != nil {
			h.logger = l
		}
	}
}

// NewArrowHandler creates a new ArrowHandler.
func NewArrowHandler(opts ...HandlerOption) *ArrowHandler {
	h := &ArrowHandler{
		codec:       cbarrow.NewIPCCodec(nil),
		exporter:    ffi.NewExporter(),
		parallelism: runtime.GOMAXPROCS(0),
		recorder:    nopRecorder{},
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ProcessBatch handles one request payload and returns the encoded reply.
// Processing errors are reported inside the reply; the returned error is
// only set when the reply itself cannot be encoded.
func (h *ArrowHandler) ProcessBatch(payload []byte) ([]byte, error) {
	resp, err := h.Probe(context.Background(), payload)
	if err != nil {
		h.logger.Warn("probe failed", zap.Int("bytes", len(payload)), zap.Error(err))
		resp = &ProbeResponse{Error: err.Error()}
	}
	return json.Marshal(resp)
}

// Probe decodes payload as an Arrow IPC stream and probes every column of
// every batch.
func (h *ArrowHandler) Probe(ctx context.Context, payload []byte) (resp *ProbeResponse, err error) {
	start := time.Now()
	columns := 0
	defer func() {
		h.recorder.RecordBatch(columns, err == nil, time.Since(start))
	}()

	if len(payload) == 0 {
		return nil, ErrEmptyPayload
	}

	_, records, err := h.codec.Decode(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode IPC stream: %w", err)
	}
	defer cbarrow.ReleaseAll(records)

	resp = &ProbeResponse{Batches: make([]BatchReport, 0, len(records))}
	for i, rec := range records {
		rb, err := data.RecordFromArrow(rec)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		report, err := h.probeBatch(ctx, rb)
		if err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
		columns += rb.NumCols()
		resp.Batches = append(resp.Batches, report)
	}

	h.logger.Debug("probed batches",
		zap.Int("batches", len(records)),
		zap.Int("columns", columns),
		zap.Duration("took", time.Since(start)))
	return resp, nil
}

func (h *ArrowHandler) probeBatch(ctx context.Context, rb *data.RecordBatch) (BatchReport, error) {
	report := BatchReport{
		Rows:    rb.NumRows(),
		Columns: make([]ColumnReport, rb.NumCols()),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)
	for i, f := range rb.Fields() {
		col := rb.Column(i)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			cr, err := h.probeColumn(f, col)
			if err != nil {
				return fmt.Errorf("column %q: %w", f.Name, err)
			}
			report.Columns[i] = cr
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return BatchReport{}, err
	}
	return report, nil
}

func (h *ArrowHandler) probeColumn(f layout.Field, col *data.Column) (ColumnReport, error) {
	var arr ffi.CArrowArray
	var schema ffi.CArrowSchema
	if err := h.exporter.Export(col, f.Name, &arr, &schema); err != nil {
		return ColumnReport{}, err
	}
	nodes, err := ffi.Describe(&arr, &schema)
	ffi.ReleaseCArrowArray(&arr)
	ffi.ReleaseCArrowSchema(&schema)
	if err != nil {
		return ColumnReport{}, err
	}

	res, err := bridge.Verify(h.exporter, f.Name, col)
	if err != nil {
		return ColumnReport{}, err
	}
	if !res.OK() {
		h.logger.Warn("column failed verification",
			zap.String("column", f.Name),
			zap.String("format", res.Format),
			zap.String("mismatch", res.Mismatch))
	}

	return ColumnReport{
		Name:   f.Name,
		Format: nodes.Format,
		Layout: nodes,
		Verify: res,
	}, nil
}
