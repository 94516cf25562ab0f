package progress

import "io"

// Func receives the bytes read so far and the expected total (0 when unknown).
type Func func(read int64, total int64)

// Reader wraps an io.Reader and reports progress every interval bytes and
// once more when the underlying reader is exhausted.
type Reader struct {
	r        io.Reader
	total    int64
	interval int64
	onReport Func

	read       int64
	sinceLast  int64
	reportedAt int64
}

func NewReader(r io.Reader, total, interval int64, fn Func) *Reader {
	return &Reader{
		r:        r,
		total:    total,
		interval: interval,
		onReport: fn,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.r.Read(p)
	if n > 0 {
		pr.read += int64(n)
		pr.sinceLast += int64(n)

		if pr.interval > 0 && pr.sinceLast >= pr.interval {
			pr.report()
		}
	}

	if err == io.EOF && pr.reportedAt != pr.read {
		pr.report()
	}

	return n, err
}

// BytesRead returns the number of bytes read so far.
func (pr *Reader) BytesRead() int64 {
	return pr.read
}

func (pr *Reader) report() {
	pr.sinceLast = 0
	pr.reportedAt = pr.read

	if pr.onReport != nil {
		pr.onReport(pr.read, pr.total)
	}
}
