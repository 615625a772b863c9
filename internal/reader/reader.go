// Package reader pulls lines from an input stream and stamps each with a
// receive time.
package reader

import (
	"bufio"
	"io"
	"time"

	"github.com/vrurg/qnode-logproc/internal/record"
)

// Reader scans an io.Reader line by line, emitting a record.LineMessage per
// line on Output. It never closes Output itself; the caller does once Run
// returns.
type Reader struct {
	Source io.Reader
	Output chan<- record.LineMessage
}

// New builds a Reader over src, sending onto out.
func New(src io.Reader, out chan<- record.LineMessage) *Reader {
	return &Reader{Source: src, Output: out}
}

// Run scans Source until EOF or a scan error, sending a LineMessage for
// every line read. Returns the scanner error, if any (nil on clean EOF).
func (r *Reader) Run() error {
	scanner := bufio.NewScanner(r.Source)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		r.Output <- record.LineMessage{
			Line:   scanner.Text(),
			RecvMs: time.Now().UnixMilli(),
		}
	}
	return scanner.Err()
}
