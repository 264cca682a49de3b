package tensor

import "fmt"

// DType describes the element encoding of a Buffer.
type DType int

const (
	DTypeI32 DType = iota
	DTypeF32
)

func (d DType) String() string {
	switch d {
	case DTypeI32:
		return "i32"
	case DTypeF32:
		return "f32"
	default:
		return fmt.Sprintf("dtype(%d)", int(d))
	}
}

// Buffer is a dense typed tensor used to move token ids, scores and logits
// between the executor, the sampler and the decode pipeline.  Exactly one of
// the backing slices is populated, matching DType.
//
// Buffer does not perform any memory safety beyond the checks performed by
// Go's slice types; out-of-range indices will panic.
type Buffer struct {
	dims []int
	dt   DType

	i32 []int32
	f32 []float32
}

// NewInt32 allocates a zero-initialised int32 buffer with the given
// dimensions.
func NewInt32(dims ...int) *Buffer {
	return &Buffer{dims: cloneDims(dims), dt: DTypeI32, i32: make([]int32, numElements(dims))}
}

// NewFloat32 allocates a zero-initialised float32 buffer with the given
// dimensions.
func NewFloat32(dims ...int) *Buffer {
	return &Buffer{dims: cloneDims(dims), dt: DTypeF32, f32: make([]float32, numElements(dims))}
}

// FromInt32 wraps an existing slice. The data length must match the product
// of dims.
func FromInt32(data []int32, dims ...int) *Buffer {
	if len(data) != numElements(dims) {
		panic("tensor: data length mismatch")
	}
	return &Buffer{dims: cloneDims(dims), dt: DTypeI32, i32: data}
}

// FromFloat32 wraps an existing slice. The data length must match the product
// of dims.
func FromFloat32(data []float32, dims ...int) *Buffer {
	if len(data) != numElements(dims) {
		panic("tensor: data length mismatch")
	}
	return &Buffer{dims: cloneDims(dims), dt: DTypeF32, f32: data}
}

// Dims returns the buffer dimensions. The returned slice must not be
// modified.
func (b *Buffer) Dims() []int { return b.dims }

// DType returns the element encoding.
func (b *Buffer) DType() DType { return b.dt }

// Len returns the total number of elements.
func (b *Buffer) Len() int { return numElements(b.dims) }

// Int32s returns the backing int32 slice.
func (b *Buffer) Int32s() ([]int32, error) {
	if b.dt != DTypeI32 {
		return nil, fmt.Errorf("tensor: want i32 buffer, got %s", b.dt)
	}
	return b.i32, nil
}

// Float32s returns the backing float32 slice.
func (b *Buffer) Float32s() ([]float32, error) {
	if b.dt != DTypeF32 {
		return nil, fmt.Errorf("tensor: want f32 buffer, got %s", b.dt)
	}
	return b.f32, nil
}

// Duplicate returns a deep copy of the buffer. The executor may retain or
// mutate inputs it is handed, so callers duplicate before submitting a buffer
// they intend to keep writing into.
func (b *Buffer) Duplicate() *Buffer {
	dup := &Buffer{dims: cloneDims(b.dims), dt: b.dt}
	if b.i32 != nil {
		dup.i32 = append([]int32(nil), b.i32...)
	}
	if b.f32 != nil {
		dup.f32 = append([]float32(nil), b.f32...)
	}
	return dup
}

func cloneDims(dims []int) []int {
	return append([]int(nil), dims...)
}

func numElements(dims []int) int {
	n := 1
	for _, d := range dims {
		if d < 0 {
			panic("tensor: negative dimension")
		}
		n *= d
	}
	if len(dims) == 0 {
		return 0
	}
	return n
}
