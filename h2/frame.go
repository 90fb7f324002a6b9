package h2

import (
	"bytes"
	"io"
	"sync"

	"golang.org/x/net/http2"
	"golang.org/x/net/http2/hpack"
)

// framer binds golang.org/x/net/http2's Framer and hpack codec to one
// connection, providing mutex-guarded write helpers and an HPACK encode
// helper as a small mixin embedded in Connection.
type framer struct {
	muWrite sync.Mutex
	f       *http2.Framer

	muEnc sync.Mutex
	enc   *hpack.Encoder
	wbuf  *bytes.Buffer

	maxHeaderListSize uint32
}

func newFramer(rw io.ReadWriter, readTableSize uint32, maxReadHeaderList uint32) *framer {
	fr := http2.NewFramer(rw, rw)
	fr.ReadMetaHeaders = hpack.NewDecoder(readTableSize, nil)
	fr.MaxHeaderListSize = maxReadHeaderList
	wbuf := &bytes.Buffer{}
	return &framer{
		f:    fr,
		enc:  hpack.NewEncoder(wbuf),
		wbuf: wbuf,
	}
}

func (fr *framer) SetMaxReadFrameSize(n uint32) { fr.f.SetMaxReadFrameSize(n) }

func (fr *framer) ReadFrame() (http2.Frame, error) { return fr.f.ReadFrame() }

func (fr *framer) SetEncoderMaxDynamicTableSize(v uint32) {
	fr.muEnc.Lock()
	fr.enc.SetMaxDynamicTableSize(v)
	fr.muEnc.Unlock()
}

func (fr *framer) SetMaxHeaderListSize(v uint32) { fr.maxHeaderListSize = v }

// EncodeHeaders HPACK-encodes a header block, rejecting it if the
// uncompressed size exceeds the peer's advertised max-header-list-size.
func (fr *framer) EncodeHeaders(enum func(func(name, value string, sensitive bool))) ([]byte, error) {
	fr.muEnc.Lock()
	defer fr.muEnc.Unlock()
	fr.wbuf.Reset()

	var total uint32
	enum(func(name, value string, _ bool) {
		total += hpack.HeaderField{Name: name, Value: value}.Size()
	})
	if fr.maxHeaderListSize != 0 && total > fr.maxHeaderListSize {
		return nil, headerListTooLarge
	}
	enum(func(name, value string, sensitive bool) {
		fr.enc.WriteField(hpack.HeaderField{Name: name, Value: value, Sensitive: sensitive})
	})
	out := make([]byte, fr.wbuf.Len())
	copy(out, fr.wbuf.Bytes())
	return out, nil
}

func (fr *framer) WriteSettings(s ...http2.Setting) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteSettings(s...)
}

func (fr *framer) WriteSettingsAck() error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteSettingsAck()
}

func (fr *framer) WriteHeaders(p http2.HeadersFrameParam) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteHeaders(p)
}

func (fr *framer) WriteContinuation(streamID uint32, endHeaders bool, frag []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteContinuation(streamID, endHeaders, frag)
}

func (fr *framer) WriteData(streamID uint32, endStream bool, data []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteData(streamID, endStream, data)
}

func (fr *framer) WritePing(ack bool, data [8]byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WritePing(ack, data)
}

func (fr *framer) WriteRSTStream(streamID uint32, code http2.ErrCode) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteRSTStream(streamID, code)
}

func (fr *framer) WriteGoAway(lastStreamID uint32, code http2.ErrCode, debug []byte) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteGoAway(lastStreamID, code, debug)
}

func (fr *framer) WriteWindowUpdate(streamID, incr uint32) error {
	if incr == 0 {
		return nil
	}
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WriteWindowUpdate(streamID, incr)
}

func (fr *framer) WritePriority(streamID uint32, p http2.PriorityParam) error {
	fr.muWrite.Lock()
	defer fr.muWrite.Unlock()
	return fr.f.WritePriority(streamID, p)
}

type frameErr string

func (e frameErr) Error() string { return string(e) }

const headerListTooLarge frameErr = "h2: header list larger than peer's advertised limit"
