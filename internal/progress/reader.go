package progress

import "io"

// Reader wraps an io.Reader and calls OnChunk after every non-empty read.
// Total is nil when the size of the stream is unknown.
type Reader struct {
	r       io.Reader
	total   *uint64
	read    uint64
	onChunk func(chunkSize int, total *uint64)
}

// NewReader wraps r. A negative total means unknown.
func NewReader(r io.Reader, total int64, onChunk func(chunkSize int, total *uint64)) *Reader {
	pr := &Reader{r: r, onChunk: onChunk}

	if total >= 0 {
		t := uint64(total)
		pr.total = &t
	}

	return pr
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += uint64(n)

		if pr.onChunk != nil {
			pr.onChunk(n, pr.total)
		}
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() uint64 {
	return pr.read
}
