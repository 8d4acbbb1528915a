package ffi

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/VanDung-dev/ColumnBridge/columnbridge/layout"
	"github.com/apache/arrow-go/v18/arrow/memory/mallocator"
	"go.uber.org/zap"
)

// ExportHandle owns every allocation behind one exported node: its value
// buffers, the C-side pointer arrays and strings, and the handles of any
// children and dictionary it exported. It is reachable from C only through
// the registry id stored in the node's private_data.
type ExportHandle struct {
	kind     Kind
	id       uintptr
	released atomic.Bool

	alloc   *mallocator.Mallocator
	buffers [][]byte
	cmem    []unsafe.Pointer
	owned   []func()
	nbytes  int

	observer Observer
	logger   *zap.Logger
}

var (
	handles  sync.Map // uintptr -> *ExportHandle
	handleID atomic.Uintptr
	absorbed atomic.Int64
)

func (e *Exporter) newHandle(kind Kind) *ExportHandle {
	return &ExportHandle{
		kind:     kind,
		alloc:    e.alloc,
		observer: e.observer,
		logger:   e.logger,
	}
}

// register makes h reachable from C and returns its id.
func (h *ExportHandle) register() uintptr {
	h.id = handleID.Add(1)
	handles.Store(h.id, h)
	h.observer.Exported(h.kind, h.nbytes)
	return h.id
}

func lookupHandle(id uintptr) (*ExportHandle, bool) {
	v, ok := handles.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*ExportHandle), true
}

// Kind reports which sort of node h backs.
func (h *ExportHandle) Kind() Kind { return h.kind }

// Bytes reports the buffer bytes h holds.
func (h *ExportHandle) Bytes() int { return h.nbytes }

// Released reports whether h has been released.
func (h *ExportHandle) Released() bool { return h.released.Load() }

// buffer returns a zeroed C buffer of n bytes owned by h. Zero-length
// buffers resolve to a shared static region instead of NULL.
func (h *ExportHandle) buffer(n int) ([]byte, unsafe.Pointer) {
	if n == 0 {
		return nil, zeroRegion()
	}
	b := h.alloc.Allocate(n)
	h.buffers = append(h.buffers, b)
	h.nbytes += n
	return b, unsafe.Pointer(unsafe.SliceData(b))
}

// own records C memory h must free on release.
func (h *ExportHandle) own(p unsafe.Pointer) unsafe.Pointer {
	if p != nil {
		h.cmem = append(h.cmem, p)
	}
	return p
}

func (h *ExportHandle) cstring(s string) unsafe.Pointer { return h.own(cstring(s)) }

func (h *ExportHandle) cbytes(b []byte) unsafe.Pointer { return h.own(cbytes(b)) }

// adopt arranges for release to be called when h is released. Children and
// dictionaries are adopted through their C release callbacks so that a node
// moved out by the consumer is skipped.
func (h *ExportHandle) adopt(release func()) {
	h.owned = append(h.owned, release)
}

// Release frees everything h owns, children first in reverse order of
// export. Only the first call has effect; later calls report
// layout.ErrDoubleRelease.
func (h *ExportHandle) Release() error {
	if !h.released.CompareAndSwap(false, true) {
		return fmt.Errorf("%s handle %d: %w", h.kind, h.id, layout.ErrDoubleRelease)
	}

	for i := len(h.owned) - 1; i >= 0; i-- {
		h.owned[i]()
	}
	for _, b := range h.buffers {
		h.alloc.Free(b)
	}
	for _, p := range h.cmem {
		cfree(p)
	}
	h.owned, h.buffers, h.cmem = nil, nil, nil

	if h.id != 0 {
		handles.Delete(h.id)
		h.observer.Released(h.kind, h.nbytes)
	}
	return nil
}

// releaseByID runs the release of the handle registered under id. An
// unknown id, typically a node whose release already ran, is logged and
// counted. It reports whether a handle was found.
func releaseByID(id uintptr, kind Kind) bool {
	h, ok := lookupHandle(id)
	if !ok {
		absorbed.Add(1)
		zap.L().Debug("release of unknown export handle",
			zap.Uintptr("id", id), zap.String("kind", string(kind)))
		return false
	}
	if err := h.Release(); err != nil {
		h.observer.DoubleRelease(h.kind)
		h.logger.Debug("export released twice", zap.Error(err))
	}
	return true
}

// AbsorbedReleases reports how many release callbacks arrived for nodes
// that were no longer registered.
func AbsorbedReleases() int64 { return absorbed.Load() }

// LiveHandles reports the number of exported nodes not yet released.
func LiveHandles() int {
	n := 0
	handles.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}
