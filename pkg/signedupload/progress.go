package signedupload

import "io"

// Progress reports how much of the file body has been written to the wire.
type Progress struct {
	Key   string
	Sent  int64
	Total int64
	Ratio float64 // in [0,1], non-decreasing within an attempt
}

// ProgressFunc is called during transfer when the total size is known.
// It is advisory and never affects the outcome.
type ProgressFunc func(Progress)

// progressReader wraps the file body to track transfer progress
type progressReader struct {
	reader   io.Reader
	key      string
	sent     int64
	total    int64
	last     float64
	callback ProgressFunc
}

func newProgressReader(r io.Reader, key string, total int64, fn ProgressFunc) io.Reader {
	if fn == nil || total <= 0 {
		return r
	}
	return &progressReader{reader: r, key: key, total: total, callback: fn}
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	if n > 0 {
		pr.sent += int64(n)
		pr.report()
	}
	return n, err
}

func (pr *progressReader) report() {
	ratio := float64(pr.sent) / float64(pr.total)
	if ratio > 1 {
		ratio = 1
	}
	if ratio < pr.last {
		return
	}
	pr.last = ratio
	pr.callback(Progress{Key: pr.key, Sent: pr.sent, Total: pr.total, Ratio: ratio})
}
