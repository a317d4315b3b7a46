// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"testing/iotest"
)

func stream(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func TestFrameReader_OneByteReads(t *testing.T) {
	move := NewMoveCommand(7)
	var ok Message
	BuildOk(&ok, CmdMove)

	fr := NewFrameReader(iotest.OneByteReader(bytes.NewReader(stream(move.Bytes(), ok.Bytes()))))

	f, err := fr.Next()
	if err != nil {
		t.Fatalf("first frame: %v", err)
	}
	if f.Message != move {
		t.Errorf("first frame = %s", FormatMessage(&f.Message))
	}

	f, err = fr.Next()
	if err != nil {
		t.Fatalf("second frame: %v", err)
	}
	if f.Message.ResponseCode() != RspOk {
		t.Errorf("second frame code = 0x%02X", f.Message.ResponseCode())
	}

	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("after last frame err = %v, want EOF", err)
	}
}

func TestFrameReader_SkippedNoise(t *testing.T) {
	status := NewStatusCommand()
	fr := NewFrameReader(bytes.NewReader(stream([]byte{0x10, 0x20, 0x30, 0x40}, status.Bytes(), status.Bytes())))

	if _, err := fr.Next(); err != nil {
		t.Fatal(err)
	}
	if fr.Skipped() != 4 {
		t.Errorf("Skipped() = %d, want 4", fr.Skipped())
	}

	if _, err := fr.Next(); err != nil {
		t.Fatal(err)
	}
	if fr.Skipped() != 0 {
		t.Errorf("Skipped() = %d for back-to-back frame, want 0", fr.Skipped())
	}
}

func TestFrameReader_MalformedThenGood(t *testing.T) {
	bad := NewStatusCommand()
	bad[IndexEnd] = 0x00
	good := NewLocationCommand()

	fr := NewFrameReader(bytes.NewReader(stream(bad.Bytes(), good.Bytes())))

	if _, err := fr.Next(); !errors.Is(err, ErrMalformed) {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
	f, err := fr.Next()
	if err != nil {
		t.Fatalf("after malformed frame: %v", err)
	}
	if f.Message.Command() != CmdLocation {
		t.Errorf("command = %s", FormatCommand(f.Message.Command()))
	}
}

func TestFrameReader_ErrorAfterBufferedData(t *testing.T) {
	stop := NewStopCommand()
	// The final read returns the frame together with EOF
	fr := NewFrameReader(iotest.DataErrReader(bytes.NewReader(stop.Bytes())))

	f, err := fr.Next()
	if err != nil {
		t.Fatalf("frame delivered with EOF was lost: %v", err)
	}
	if f.Message.Command() != CmdStop {
		t.Errorf("command = %s", FormatCommand(f.Message.Command()))
	}
	if _, err := fr.Next(); !errors.Is(err, io.EOF) {
		t.Errorf("err = %v, want EOF", err)
	}
}

// timeoutReader returns empty reads before handing over its data
type timeoutReader struct {
	empty int
	r     io.Reader
}

func (t *timeoutReader) Read(p []byte) (int, error) {
	if t.empty > 0 {
		t.empty--
		return 0, nil
	}
	return t.r.Read(p)
}

func TestFrameReader_RetriesEmptyReads(t *testing.T) {
	pour := NewPourCommand(2)
	fr := NewFrameReader(&timeoutReader{empty: 3, r: bytes.NewReader(pour.Bytes())})

	f, err := fr.Next()
	if err != nil {
		t.Fatal(err)
	}
	if f.Message[ParamAmount] != 2 {
		t.Errorf("amount = %d", f.Message[ParamAmount])
	}
}
