package chunked

import (
	"fmt"
	"io"
	"net/textproto"
)

// NewWriter wraps w as a chunked-encoding io.Writer, in the style of the
// Go standard library's net/http/internal chunked writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{Wire: w}
}

type Writer struct {
	Wire io.Writer
}

func (cw *Writer) Write(data []byte) (n int, err error) {
	if len(data) == 0 {
		// a zero-length Write would look like the terminating chunk
		return 0, nil
	}
	if _, err = fmt.Fprintf(cw.Wire, "%x\r\n", len(data)); err != nil {
		return 0, err
	}
	if n, err = cw.Wire.Write(data); err != nil {
		return
	}
	if n != len(data) {
		return n, io.ErrShortWrite
	}
	if _, err = io.WriteString(cw.Wire, "\r\n"); err != nil {
		return
	}
	if f, ok := cw.Wire.(interface{ Flush() error }); ok {
		err = f.Flush()
	}
	return
}

// Close writes the terminating 0-size chunk with no trailer.
func (cw *Writer) Close() error {
	return cw.CloseWithTrailer(nil)
}

// CloseWithTrailer writes the terminating 0-size chunk followed by trailer
// fields, if any.
func (cw *Writer) CloseWithTrailer(trailer textproto.MIMEHeader) error {
	n, err := io.WriteString(cw.Wire, "0\r\n")
	if err != nil {
		return err
	}
	if n != 3 {
		return io.ErrShortWrite
	}
	for k, vs := range trailer {
		for _, v := range vs {
			if _, err := io.WriteString(cw.Wire, k+": "+v+"\r\n"); err != nil {
				return err
			}
		}
	}
	_, err = io.WriteString(cw.Wire, "\r\n")
	return err
}
