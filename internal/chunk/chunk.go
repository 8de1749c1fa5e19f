package chunk

import "io"

// Buffer is a fixed-capacity read window. Each round the engine fills the
// free space after the carried prefix, hands Bytes to the consumer and then
// keeps whatever tail the consumer could not use as the next carried prefix.
// The carried prefix is always strictly smaller than the capacity so every
// round has room for at least one fresh byte.
type Buffer struct {
	buf     []byte
	length  int // valid bytes, carried prefix included
	carried int // bytes at the head retained from the previous round
}

// NewBuffer allocates a buffer holding up to capacity bytes.
func NewBuffer(capacity int) (*Buffer, error) {
	if capacity < 2 {
		return nil, ErrInvalidCapacity
	}

	return &Buffer{buf: make([]byte, capacity)}, nil
}

// Carried returns the size of the prefix retained from the previous round.
func (b *Buffer) Carried() int {
	return b.carried
}

// Free returns the number of bytes the next Fill may read.
func (b *Buffer) Free() int {
	return len(b.buf) - b.length
}

// Bytes returns the valid window. The slice aliases the buffer and is only
// valid until the next Fill or RetainTail.
func (b *Buffer) Bytes() []byte {
	return b.buf[:b.length]
}

// Fill performs exactly one Read from r into the free space and returns the
// number of fresh bytes appended.
func (b *Buffer) Fill(r io.Reader) (int, error) {
	if b.Free() == 0 {
		return 0, ErrBufferFull
	}

	n, err := r.Read(b.buf[b.length:])
	if n > 0 {
		b.length += n
	}

	return n, err
}

// RetainTail keeps the last n valid bytes, moves them to the head and makes
// them the carried prefix of the next round. n is clamped to
// [0, min(Len, Cap-1)]; the applied value is returned.
func (b *Buffer) RetainTail(n int) int {
	if n < 0 {
		n = 0
	}
	if n > b.length {
		n = b.length
	}
	if n > len(b.buf)-1 {
		n = len(b.buf) - 1
	}

	if n > 0 {
		copy(b.buf, b.buf[b.length-n:b.length])
	}

	b.length = n
	b.carried = n

	return n
}
