package simplego

import (
	"github.com/gomlx/opcheck/backends/shapeinference"
	"github.com/gomlx/opcheck/pkg/core/dtypes"
	"github.com/x448/float16"
)

// Float16 has no native arithmetic in Go: its kernels upcast the inputs to float32 scratch buffers,
// run the float32 kernel, and round the result back to float16.

// upcastFloat16 returns a pooled float32 buffer with the values of the float16 buffer.
func (b *Backend) upcastFloat16(buf *Buffer) *Buffer {
	scratch := b.newBuffer(buf.shape.WithDType(dtypes.Float32))
	src, dst := buf.flat.([]float16.Float16), scratch.flat.([]float32)
	b.parallelFor(len(src), func(start, end int) {
		for ii := start; ii < end; ii++ {
			dst[ii] = src[ii].Float32()
		}
	})
	return scratch
}

// downcastToFloat16 rounds the float32 values of scratch into the float16 output.
func (b *Backend) downcastToFloat16(scratch, output *Buffer) {
	src, dst := scratch.flat.([]float32), output.flat.([]float16.Float16)
	b.parallelFor(len(src), func(start, end int) {
		for ii := start; ii < end; ii++ {
			dst[ii] = float16.Fromfloat32(src[ii])
		}
	})
}

// withFloat32 wraps a float32 kernel to handle float16 inputs and output.
func withFloat32(kernel executor) executor {
	return func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, output *Buffer) {
		upcast := make([]*Buffer, len(inputs))
		for ii, input := range inputs {
			upcast[ii] = b.upcastFloat16(input)
			defer b.putBuffer(upcast[ii])
		}
		scratch := b.newBuffer(output.shape.WithDType(dtypes.Float32))
		defer b.putBuffer(scratch)
		kernel(b, sig, upcast, scratch)
		b.downcastToFloat16(scratch, output)
	}
}

// withFloat32Gradient wraps a float32 gradient kernel to handle float16 inputs and gradient.
func withFloat32Gradient(kernel gradientExecutor) gradientExecutor {
	return func(b *Backend, sig *shapeinference.Signature, inputs []*Buffer, inputIdx int, output *Buffer) {
		upcast := make([]*Buffer, len(inputs))
		for ii, input := range inputs {
			upcast[ii] = b.upcastFloat16(input)
			defer b.putBuffer(upcast[ii])
		}
		scratch := b.newBuffer(output.shape.WithDType(dtypes.Float32))
		defer b.putBuffer(scratch)
		kernel(b, sig, upcast, inputIdx, scratch)
		b.downcastToFloat16(scratch, output)
	}
}
