// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import "io"

// readChunk bounds a single read from the underlying stream
const readChunk = 128

// FrameReader pulls frames out of a byte stream with a Decoder. It is the
// controller-side reader shared by every tool that listens to the link.
type FrameReader struct {
	r       io.Reader
	decoder *Decoder

	buf    []byte
	pos, n int
	err    error // read error held back until buffered bytes are decoded

	skipped int
}

// NewFrameReader creates a frame reader on r
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{
		r:       r,
		decoder: NewDecoder(),
		buf:     make([]byte, readChunk),
	}
}

// Next returns the next frame.
//
// A frame that ends without its end sentinel is reported as an error
// wrapping ErrMalformed; the reader has already resynchronized and Next may
// be called again. Any other error comes from the underlying stream. A read
// that returns no bytes and no error (a serial read timeout) is retried.
func (fr *FrameReader) Next() (*Frame, error) {
	for {
		for fr.pos < fr.n {
			b := fr.buf[fr.pos]
			fr.pos++

			before := fr.decoder.Skipped()
			frame, err := fr.decoder.DecodeByte(b)
			if err != nil {
				return nil, err
			}
			if frame != nil {
				fr.skipped = before
				return frame, nil
			}
		}

		if fr.err != nil {
			err := fr.err
			fr.err = nil
			return nil, err
		}

		fr.n, fr.err = fr.r.Read(fr.buf)
		fr.pos = 0
	}
}

// Skipped returns the number of bytes discarded while hunting for the start
// of the frame most recently returned by Next
func (fr *FrameReader) Skipped() int {
	return fr.skipped
}
