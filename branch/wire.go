/*
 * MIT License
 *
 * Copyright (c) 2026 Yogi Authors
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

package branch

import (
	"encoding/binary"
	"math"
	"time"

	yerr "github.com/nabbar/yogi/errors"

	"github.com/google/uuid"
)

// AdvertisingMessageSize is the fixed size of the advertising datagram
// (spec §3/§6): magic "YOGI\0" + major + minor + uuid[16] + port[2].
const AdvertisingMessageSize = 25

const (
	magicByte0 = 'Y'
	magicByte1 = 'O'
	magicByte2 = 'G'
	magicByte3 = 'I'
	magicByte4 = 0x00
)

// VersionMajor/VersionMinor are the protocol versions this implementation
// speaks and requires from peers (spec §6 "incompatible_version").
const (
	VersionMajor byte = 1
	VersionMinor byte = 0
)

// encodeAdvPrefix writes the fixed 25-byte advertising prefix for id/port
// into buf, which must be at least AdvertisingMessageSize bytes.
func encodeAdvPrefix(buf []byte, id uuid.UUID, tcpPort uint16) {
	buf[0], buf[1], buf[2], buf[3], buf[4] = magicByte0, magicByte1, magicByte2, magicByte3, magicByte4
	buf[5] = VersionMajor
	buf[6] = VersionMinor
	copy(buf[7:23], id[:])
	binary.BigEndian.PutUint16(buf[23:25], tcpPort)
}

// decodeAdvPrefix validates the magic/version of buf (which must be at
// least AdvertisingMessageSize bytes) and extracts the peer's uuid and TCP
// port.
func decodeAdvPrefix(buf []byte) (id uuid.UUID, tcpPort uint16, err yerr.Error) {
	if len(buf) < AdvertisingMessageSize {
		return uuid.UUID{}, 0, yerr.New(yerr.DeserializeMsgFailed)
	}
	if buf[0] != magicByte0 || buf[1] != magicByte1 || buf[2] != magicByte2 ||
		buf[3] != magicByte3 || buf[4] != magicByte4 {
		return uuid.UUID{}, 0, yerr.New(yerr.InvalidMagicPrefix)
	}
	if buf[5] != VersionMajor || buf[6] != VersionMinor {
		return uuid.UUID{}, 0, yerr.New(yerr.IncompatibleVersion)
	}
	copy(id[:], buf[7:23])
	tcpPort = binary.BigEndian.Uint16(buf[23:25])
	return id, tcpPort, nil
}

// fieldWriter accumulates the length-prefixed fields of an Info message
// body (spec §6: "string -> u32_le len + raw bytes"; "u16/u32 ->
// little-endian"; "nanoseconds duration -> i64_le, max-value = infinite";
// "Timestamp -> i64_le"; "bool -> u8").
type fieldWriter struct {
	buf []byte
}

func (w *fieldWriter) string(s string) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(s)))
	w.buf = append(w.buf, lenBuf[:]...)
	w.buf = append(w.buf, s...)
}

func (w *fieldWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}

func (w *fieldWriter) i64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf = append(w.buf, b[:]...)
}

// duration writes d as i64_le nanoseconds; a negative (infinite) duration
// is written as the max-value sentinel per spec §6, not -1.
func (w *fieldWriter) duration(d time.Duration) {
	if d < 0 {
		w.i64(math.MaxInt64)
		return
	}
	w.i64(int64(d))
}

func (w *fieldWriter) timestamp(t time.Time) {
	w.i64(t.UnixNano())
}

func (w *fieldWriter) boolean(b bool) {
	if b {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// fieldReader parses an Info message body in the same field order it was
// written.
type fieldReader struct {
	buf []byte
	pos int
}

func (r *fieldReader) need(n int) yerr.Error {
	if len(r.buf)-r.pos < n {
		return yerr.New(yerr.DeserializeMsgFailed)
	}
	return nil
}

func (r *fieldReader) string() (string, yerr.Error) {
	if err := r.need(4); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	if err := r.need(int(n)); err != nil {
		return "", err
	}
	s := string(r.buf[r.pos : r.pos+int(n)])
	r.pos += int(n)
	return s, nil
}

func (r *fieldReader) u32() (uint32, yerr.Error) {
	if err := r.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

func (r *fieldReader) i64() (int64, yerr.Error) {
	if err := r.need(8); err != nil {
		return 0, err
	}
	v := int64(binary.LittleEndian.Uint64(r.buf[r.pos : r.pos+8]))
	r.pos += 8
	return v, nil
}

// duration reads an i64_le nanoseconds field, mapping the max-value
// sentinel (spec §6) back to -1, this implementation's infinite duration.
func (r *fieldReader) duration() (time.Duration, yerr.Error) {
	v, err := r.i64()
	if err != nil {
		return 0, err
	}
	if v == math.MaxInt64 || v < 0 {
		return -1, nil
	}
	return time.Duration(v), nil
}

func (r *fieldReader) timestamp() (time.Time, yerr.Error) {
	v, err := r.i64()
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(0, v).UTC(), nil
}

func (r *fieldReader) boolean() (bool, yerr.Error) {
	if err := r.need(1); err != nil {
		return false, err
	}
	b := r.buf[r.pos] != 0
	r.pos++
	return b, nil
}
