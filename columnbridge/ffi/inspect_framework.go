//go:build test

package ffi

/*
#include <stdint.h>
#include <stdlib.h>
#include <string.h>
#include "abi.h"

static int cbBitIsSet(const uint8_t* bits, int64_t i) {
	return (bits[i >> 3] >> (i & 7)) & 1;
}

// Each check returns 1 when the structure matches, 0 otherwise.

static int cbCheckInt32(const struct ArrowArray* a, const int32_t* want, int64_t n) {
	if (!a || a->release == NULL || a->n_buffers != 2 || a->length != n) return 0;
	const int32_t* v = (const int32_t*)a->buffers[1];
	if (!v) return 0;
	for (int64_t i = 0; i < n; i++) {
		if (a->buffers[0] && !cbBitIsSet((const uint8_t*)a->buffers[0], i)) continue;
		if (v[i] != want[i]) return 0;
	}
	return 1;
}

static int cbCheckValidity(const struct ArrowArray* a, const uint8_t* valid, int64_t n) {
	if (!a || a->length != n) return 0;
	const uint8_t* bits = (const uint8_t*)a->buffers[0];
	int64_t nulls = 0;
	for (int64_t i = 0; i < n; i++) {
		int set = bits ? cbBitIsSet(bits, i) : 1;
		if (set != (valid[i] != 0)) return 0;
		nulls += !set;
	}
	return nulls == a->null_count;
}

static int cbCheckBoolByte(const struct ArrowArray* a, uint8_t want) {
	if (!a || a->n_buffers != 2 || a->length > 8) return 0;
	const uint8_t* v = (const uint8_t*)a->buffers[1];
	uint8_t mask = (uint8_t)((1u << a->length) - 1);
	return v && (v[0] & mask) == want;
}

static int cbCheckUtf8(const struct ArrowArray* a, const int32_t* offsets, const char* chars, int64_t n) {
	if (!a || a->n_buffers != 3 || a->length != n) return 0;
	const int32_t* offs = (const int32_t*)a->buffers[1];
	const char* vals = (const char*)a->buffers[2];
	if (!offs || !vals) return 0;
	for (int64_t i = 0; i <= n; i++) {
		if (offs[i] != offsets[i]) return 0;
	}
	return memcmp(vals, chars, (size_t)offsets[n]) == 0;
}

static int cbCheckDictUtf8(const struct ArrowArray* a, const uint8_t* codes, int64_t n,
                           const int32_t* offsets, const char* chars, int64_t dn) {
	if (!a || a->n_buffers != 2 || a->length != n) return 0;
	const uint8_t* c = (const uint8_t*)a->buffers[1];
	if (!c || memcmp(c, codes, (size_t)n) != 0) return 0;
	return cbCheckUtf8(a->dictionary, offsets, chars, dn);
}

static int cbCheckSchema(const struct ArrowSchema* s, const char* name, const char* format, int64_t flags) {
	if (!s || !s->name || !s->format) return 0;
	return strcmp(s->name, name) == 0 && strcmp(s->format, format) == 0 && s->flags == flags;
}

// Calls the release callback through a saved pointer twice, the way a
// careless consumer would.
static int cbReleaseTwice(struct ArrowArray* a) {
	void (*release)(struct ArrowArray*) = a->release;
	if (!release) return 0;
	release(a);
	if (a->release != NULL) return 0;
	release(a);
	return a->release == NULL;
}
*/
import "C"

import "unsafe"

func cBool(v C.int) bool { return v == 1 }

func inspectInt32(a *CArrowArray, want []int32) bool {
	return cBool(C.cbCheckInt32(a, (*C.int32_t)(unsafe.Pointer(unsafe.SliceData(want))), C.int64_t(len(want))))
}

func inspectValidity(a *CArrowArray, valid []bool) bool {
	bytes := make([]byte, len(valid))
	for i, v := range valid {
		if v {
			bytes[i] = 1
		}
	}
	return cBool(C.cbCheckValidity(a, (*C.uint8_t)(unsafe.Pointer(unsafe.SliceData(bytes))), C.int64_t(len(valid))))
}

func inspectBoolByte(a *CArrowArray, want byte) bool {
	return cBool(C.cbCheckBoolByte(a, C.uint8_t(want)))
}

func inspectUtf8(a *CArrowArray, offsets []int32, chars string) bool {
	cs := C.CString(chars)
	defer C.free(unsafe.Pointer(cs))
	return cBool(C.cbCheckUtf8(a, (*C.int32_t)(unsafe.Pointer(unsafe.SliceData(offsets))), cs, C.int64_t(len(offsets)-1)))
}

func inspectDictUtf8(a *CArrowArray, codes []byte, offsets []int32, chars string) bool {
	cs := C.CString(chars)
	defer C.free(unsafe.Pointer(cs))
	return cBool(C.cbCheckDictUtf8(a,
		(*C.uint8_t)(unsafe.Pointer(unsafe.SliceData(codes))), C.int64_t(len(codes)),
		(*C.int32_t)(unsafe.Pointer(unsafe.SliceData(offsets))), cs, C.int64_t(len(offsets)-1)))
}

func inspectSchema(s *CArrowSchema, name, format string, flags int64) bool {
	cn, cf := C.CString(name), C.CString(format)
	defer C.free(unsafe.Pointer(cn))
	defer C.free(unsafe.Pointer(cf))
	return cBool(C.cbCheckSchema(s, cn, cf, C.int64_t(flags)))
}

func releaseTwiceFromC(a *CArrowArray) bool { return cBool(C.cbReleaseTwice(a)) }
