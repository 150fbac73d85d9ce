// Package progress provides an io.Reader wrapper that reports transfer
// progress through a callback.
package progress

import "io"

// Reader wraps an io.Reader and invokes the callback every interval bytes
// and once more when the expected total is reached.
type Reader struct {
	reader     io.Reader
	total      int64
	interval   int64
	onProgress func(read int64, total int64)

	read     int64
	reported int64
}

func NewReader(r io.Reader, total int64, interval int64, cb func(read int64, total int64)) *Reader {
	return &Reader{
		reader:     r,
		total:      total,
		interval:   interval,
		onProgress: cb,
	}
}

func (pr *Reader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.read += int64(n)

		if pr.read-pr.reported >= pr.interval || (pr.total > 0 && pr.read >= pr.total && pr.reported < pr.total) {
			pr.onProgress(pr.read, pr.total)
			pr.reported = pr.read
		}
	}

	return n, err
}
