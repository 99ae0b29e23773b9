package snapd

// readBuffer accumulates bytes read from the socket. Decoded frames are
// released from the front by advancing off; the backing array is compacted
// lazily when the consumed prefix dominates.
type readBuffer struct {
	data []byte
	off  int
}

func (b *readBuffer) write(p []byte) {
	if b.off > 0 && b.off >= len(b.data)/2 {
		n := copy(b.data, b.data[b.off:])
		b.data = b.data[:n]
		b.off = 0
	}
	b.data = append(b.data, p...)
}

// bytes returns the unconsumed bytes. The slice aliases the buffer and is
// only valid until the next write.
func (b *readBuffer) bytes() []byte {
	return b.data[b.off:]
}

func (b *readBuffer) consume(n int) {
	b.off += n
	if b.off >= len(b.data) {
		b.reset()
	}
}

func (b *readBuffer) len() int {
	return len(b.data) - b.off
}

func (b *readBuffer) reset() {
	b.data = b.data[:0]
	b.off = 0
}
