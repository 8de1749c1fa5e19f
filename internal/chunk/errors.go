package chunk

import "errors"

var (
	ErrInvalidCapacity = errors.New("invalid buffer capacity (must be at least 2 bytes)")
	ErrBufferFull      = errors.New("no free space left in buffer")
)
