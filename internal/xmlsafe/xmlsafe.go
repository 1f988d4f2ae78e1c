// Package xmlsafe provides a bounded streaming XML decoder shared by the
// ingestion client's SDMX data parser and the dataflow analysis service's
// dataflow-list parser (§5's "XML/SDMX parsing" redesign flag: a streaming
// parser with bounded memory that rejects inputs above a configurable size
// cap, rather than buffering an entire document with xml.Unmarshal).
package xmlsafe

import (
	"encoding/xml"
	"fmt"
	"io"
)

// ErrTooLarge is returned when the input stream exceeds the configured cap.
type ErrTooLarge struct {
	LimitBytes int64
}

func (e *ErrTooLarge) Error() string {
	return fmt.Sprintf("xmlsafe: input exceeds %d byte limit", e.LimitBytes)
}

// boundedReader fails with ErrTooLarge once more than limit bytes have been
// read, instead of silently truncating — truncated SDMX XML would parse
// into corrupt partial records rather than failing loudly.
type boundedReader struct {
	r     io.Reader
	limit int64
	read  int64
}

func (b *boundedReader) Read(p []byte) (int, error) {
	if b.read >= b.limit {
		return 0, &ErrTooLarge{LimitBytes: b.limit}
	}
	if remaining := b.limit - b.read; int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.r.Read(p)
	b.read += int64(n)
	return n, err
}

// NewDecoder returns an *xml.Decoder reading from r, bounded at maxBytes.
// CharsetReader is left unset deliberately — SDMX documents are UTF-8 and
// this service has no need to support arbitrary encodings.
func NewDecoder(r io.Reader, maxBytes int64) *xml.Decoder {
	return xml.NewDecoder(&boundedReader{r: r, limit: maxBytes})
}
