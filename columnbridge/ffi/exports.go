package ffi

// #include <errno.h>
// #include "abi.h"
import "C"

//export cbridgeReleaseArray
func cbridgeReleaseArray(arr *CArrowArray) {
	releaseByID(privateID(arr.private_data), KindArray)
	markArrayReleased(arr)
}

//export cbridgeReleaseSchema
func cbridgeReleaseSchema(schema *CArrowSchema) {
	releaseByID(privateID(schema.private_data), KindSchema)
	markSchemaReleased(schema)
}

//export cbridgeReleaseStream
func cbridgeReleaseStream(stream *CArrowArrayStream) {
	releaseByID(privateID(stream.private_data), KindStream)
	markStreamReleased(stream)
}

//export cbridgeStreamGetSchema
func cbridgeStreamGetSchema(stream *CArrowArrayStream, out *CArrowSchema) C.int {
	st, ok := lookupStream(privateID(stream.private_data))
	if !ok {
		return C.EINVAL
	}
	return C.int(st.getSchema(out))
}

//export cbridgeStreamGetNext
func cbridgeStreamGetNext(stream *CArrowArrayStream, out *CArrowArray) C.int {
	st, ok := lookupStream(privateID(stream.private_data))
	if !ok {
		return C.EINVAL
	}
	return C.int(st.getNext(out))
}

//export cbridgeStreamGetLastError
func cbridgeStreamGetLastError(stream *CArrowArrayStream) *C.char {
	st, ok := lookupStream(privateID(stream.private_data))
	if !ok {
		return nil
	}
	return (*C.char)(st.lastError())
}
