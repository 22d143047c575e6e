/*
Copyright (C) 2024 Espen Stefansen <espenas+github@gmail.com>

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package zabbix

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zlib"
)

// Header layout: "ZBXD", one flags byte, then 8 length bytes.
const (
	Magic      = "ZBXD"
	HeaderSize = 13

	FlagProtocol   byte = 0x01
	FlagCompressed byte = 0x02
)

// DefaultMaxFrameSize bounds the body accepted from the server
const DefaultMaxFrameSize = 16 << 20

// AppendHeader appends a plain frame header for a body of n bytes
func AppendHeader(dst []byte, n uint64) []byte {
	dst = append(dst, Magic...)
	dst = append(dst, FlagProtocol)
	return binary.LittleEndian.AppendUint64(dst, n)
}

// EncodeFrame wraps body into a plain protocol frame
func EncodeFrame(body []byte) []byte {
	frame := make([]byte, 0, HeaderSize+len(body))
	frame = AppendHeader(frame, uint64(len(body)))
	return append(frame, body...)
}

// EncodeCompressedFrame wraps a zlib compressed body. The length field
// then splits into the compressed size followed by the original size.
func EncodeCompressedFrame(body []byte) ([]byte, error) {
	if uint64(len(body)) > 1<<32-1 {
		return nil, fmt.Errorf("body too large for compressed frame: %d bytes", len(body))
	}

	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	if _, err := zw.Write(body); err != nil {
		return nil, fmt.Errorf("failed to compress body: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress body: %w", err)
	}

	frame := make([]byte, 0, HeaderSize+buf.Len())
	frame = append(frame, Magic...)
	frame = append(frame, FlagProtocol|FlagCompressed)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(buf.Len()))
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(body)))

	return append(frame, buf.Bytes()...), nil
}

// ReadFrame reads one frame from r and returns its (decompressed) body.
// Compressed frames are accepted only when allowCompressed is set. Any
// header mismatch or short read wraps ErrProtocolMismatch together with
// the underlying read error.
func ReadFrame(r io.Reader, maxSize uint64, allowCompressed bool) ([]byte, error) {
	var hdr [HeaderSize]byte

	if _, err := io.ReadFull(r, hdr[:5]); err != nil {
		return nil, fmt.Errorf("%w: reading header: %w", ErrProtocolMismatch, err)
	}
	if string(hdr[:4]) != Magic {
		return nil, fmt.Errorf("%w: bad magic %q", ErrProtocolMismatch, hdr[:4])
	}

	flags := hdr[4]
	compressed := false

	switch {
	case flags == FlagProtocol:
	case flags == FlagProtocol|FlagCompressed && allowCompressed:
		compressed = true
	default:
		return nil, fmt.Errorf("%w: unexpected flags 0x%02x", ErrProtocolMismatch, flags)
	}

	if _, err := io.ReadFull(r, hdr[5:]); err != nil {
		return nil, fmt.Errorf("%w: reading length: %w", ErrProtocolMismatch, err)
	}

	if !compressed {
		n := binary.LittleEndian.Uint64(hdr[5:])
		if n > maxSize {
			return nil, fmt.Errorf("%w: frame of %d bytes exceeds limit %d", ErrProtocolMismatch, n, maxSize)
		}
		return readBody(r, n)
	}

	n := uint64(binary.LittleEndian.Uint32(hdr[5:9]))
	orig := uint64(binary.LittleEndian.Uint32(hdr[9:13]))
	if n > maxSize || orig > maxSize {
		return nil, fmt.Errorf("%w: frame of %d/%d bytes exceeds limit %d", ErrProtocolMismatch, n, orig, maxSize)
	}

	raw, err := readBody(r, n)
	if err != nil {
		return nil, err
	}

	zr, err := zlib.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProtocolMismatch, err)
	}
	defer zr.Close()

	body, err := io.ReadAll(io.LimitReader(zr, int64(orig)+1))
	if err != nil {
		return nil, fmt.Errorf("%w: decompressing: %v", ErrProtocolMismatch, err)
	}
	if uint64(len(body)) != orig {
		return nil, fmt.Errorf("%w: decompressed %d bytes, header says %d", ErrProtocolMismatch, len(body), orig)
	}

	return body, nil
}

func readBody(r io.Reader, n uint64) ([]byte, error) {
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: reading %d byte body: %w", ErrProtocolMismatch, n, err)
	}
	return body, nil
}
