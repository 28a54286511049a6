// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package simplego

import (
	"reflect"
	"sync"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/gomlx/opcheck/pkg/core/shapes"
	"github.com/gomlx/opcheck/pkg/core/tensors"
)

// Buffer for SimpleGo backend holds a shape and a reference to the flat data.
//
// The flat data is either taken from the backend's pool (pooled is true), or it is a read-only view
// of an input tensor.
type Buffer struct {
	shape  shapes.Shape
	valid  bool
	pooled bool

	// flat is always a slice of the underlying data type (shape.DType).
	flat any
}

type bufferPoolKey struct {
	dtype  dtypes.DType
	length int
}

// getBufferPool for given dtype/length.
func (b *Backend) getBufferPool(dtype dtypes.DType, length int) *sync.Pool {
	key := bufferPoolKey{dtype: dtype, length: length}
	poolInterface, ok := b.bufferPools.Load(key)
	if !ok {
		poolInterface, _ = b.bufferPools.LoadOrStore(key, &sync.Pool{
			New: func() any {
				return &Buffer{
					flat:   reflect.MakeSlice(reflect.SliceOf(dtype.GoType()), length, length).Interface(),
					shape:  shapes.Make(dtype, length),
					pooled: true,
				}
			},
		})
	}
	return poolInterface.(*sync.Pool)
}

// getBuffer from backend pool of buffers. Its contents are undefined (not necessarily zero).
func (b *Backend) getBuffer(dtype dtypes.DType, length int) *Buffer {
	pool := b.getBufferPool(dtype, length)
	buf := pool.Get().(*Buffer)
	buf.valid = true
	b.numLiveBuffers.Add(1)
	return buf
}

// newBuffer returns a pooled buffer for the given shape.
func (b *Backend) newBuffer(shape shapes.Shape) *Buffer {
	buf := b.getBuffer(shape.DType, shape.Size())
	buf.shape = shape.Clone()
	return buf
}

// putBuffer back into the backend pool of buffers.
// After this any references to buffer should be dropped. Views of tensors are simply ignored.
func (b *Backend) putBuffer(buffer *Buffer) {
	if buffer == nil || !buffer.pooled || !buffer.shape.Ok() {
		return
	}
	if !buffer.valid {
		exceptions.Panicf("putBuffer(%p): buffer %s was already returned to the pool", buffer, buffer.shape)
	}
	buffer.valid = false
	b.numLiveBuffers.Add(-1)
	pool := b.getBufferPool(buffer.shape.DType, buffer.shape.Size())
	pool.Put(buffer)
}

// viewOf returns a read-only Buffer that shares the flat data of the tensor.
func viewOf(t *tensors.Tensor) *Buffer {
	buf := &Buffer{shape: t.Shape(), valid: true}
	t.ConstFlatData(func(flat any) { buf.flat = flat })
	return buf
}

// toTensor copies the buffer contents to a new tensor, owned by the caller.
func (b *Buffer) toTensor() *tensors.Tensor {
	t := tensors.FromShape(b.shape)
	err := t.MutableBytes(func(dst []byte) {
		bufTensor, err := tensors.FromFlat(b.shape, b.flat)
		if err != nil {
			panic(err)
		}
		bufTensor.ConstBytes(func(src []byte) { copy(dst, src) })
	})
	if err != nil {
		panic(err)
	}
	return t
}
