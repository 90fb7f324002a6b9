// Package chunked implements chunked transfer-coding framing for the
// HTTP/1 codec: "<hex-size>[;ext] CRLF payload CRLF", size 0 terminating,
// with trailer headers accepted after the terminator.
package chunked

import (
	"bufio"
	"errors"
	"io"
	"net/textproto"
)

// NewReader wraps r as a chunked-decoding io.Reader. Trailer is populated
// (if non-nil) once the terminating 0-size chunk and any trailer fields
// have been consumed.
func NewReader(r io.Reader, trailer *textproto.MIMEHeader) io.Reader {
	var br *bufio.Reader
	if v, ok := r.(*bufio.Reader); ok {
		br = v
	} else {
		br = bufio.NewReader(r)
	}
	return &reader{br, nil, 0, 0, trailer}
}

type reader struct {
	*bufio.Reader
	currentChunk                   io.Reader
	currentCount, currentChunkSize int64
	trailer                        *textproto.MIMEHeader
}

func (c *reader) readChunkHeader() (size uint64, err error) {
	cnt := 0
	isPrefix := true
	for isPrefix {
		var line []byte
		line, isPrefix, err = c.ReadLine()
		if err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return 0, err
		}
		// ignore chunk extensions (";ext")
		for i, b := range line {
			if b == ';' {
				line = line[:i]
				break
			}
		}
		for _, b := range line {
			cnt++
			switch {
			case '0' <= b && b <= '9':
				b = b - '0'
			case 'a' <= b && b <= 'f':
				b = b - 'a' + 10
			case 'A' <= b && b <= 'F':
				b = b - 'A' + 10
			default:
				return 0, errors.New("chunked: invalid byte in chunk length")
			}
			size <<= 4
			size |= uint64(b)
		}
		if cnt >= 16 {
			return 0, errors.New("chunked: chunk length too large")
		}
	}
	return
}

func (c *reader) readTrailer() error {
	tp := textproto.NewReader(c.Reader)
	h, err := tp.ReadMIMEHeader()
	if err != nil && err != io.EOF {
		return err
	}
	if c.trailer != nil {
		*c.trailer = h
	}
	return nil
}

func (c *reader) Read(p []byte) (n int, err error) {
	if c.currentChunk == nil {
		l, err := c.readChunkHeader()
		if err != nil {
			return n, err
		}
		if l == 0 {
			return 0, c.readTrailer0Copy()
		}
		c.currentChunk = io.LimitReader(c.Reader, int64(l))
		c.currentChunkSize = int64(l)
	}
	n, err = c.currentChunk.Read(p)
	c.currentCount += int64(n)
	if err == io.EOF {
		if c.currentCount != c.currentChunkSize {
			return n, io.ErrUnexpectedEOF
		}
		err = nil
		dr, _ := c.Reader.ReadByte()
		dn, rerr := c.Reader.ReadByte()
		if rerr != nil {
			if rerr == io.EOF {
				rerr = io.ErrUnexpectedEOF
			}
			return n, rerr
		}
		if dr != '\r' || dn != '\n' {
			return n, errors.New("chunked: malformed chunk terminator")
		}
		c.currentChunk = nil
		c.currentCount = 0
	}
	return
}

// readTrailer0Copy reads the trailer section following the terminating
// 0-size chunk and reports io.EOF once done, matching io.Reader contract.
func (c *reader) readTrailer0Copy() (error) {
	if err := c.readTrailer(); err != nil {
		return err
	}
	return io.EOF
}
