// Package tzif converts rule sets to and from the TZif file format
// according to RFC 8536, the format of the zoneinfo files read by the C
// library and by Go's time package.
// https://datatracker.ietf.org/doc/html/rfc8536
package tzif

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// NOTE: All multi-octet integer values MUST be stored in network octet
// order format (high-order octet first, otherwise known as big-endian),
// with all bits significant.  Signed integer values MUST be represented
// using two's complement.
var order = binary.BigEndian

// Version represents the version of a TZif file.
// In V1, time values are 32bit (four-octets) and in V2 upwards time values
// are 64bit (eight-octets).
type Version byte

func (v Version) String() string {
	switch v {
	case V1:
		return "V1 (0x00)"
	case V2:
		return "V2 (0x32)"
	case V3:
		return "V3 (0x33)"
	case V4:
		return "V4 (0x34)"
	default:
		return fmt.Sprintf("<undefined version (%d)>", v)
	}
}

const (
	// V1 files contain only the version 1 header and data block.
	V1 Version = 0x00
	// V2 files add a 64-bit header and data block and a footer holding a
	// POSIX TZ string.
	V2 Version = 0x32
	// V3 files may use the TZ string extensions of RFC 8536 section 3.3.1:
	// transition times outside [0, 24h].
	V3 Version = 0x33
	// V4 files may truncate the leap second table. It is specified in the
	// tzfile(5) man page.
	V4 Version = 0x34
)

// Magic is the four-octet ASCII sequence "TZif" (0x54 0x5A 0x69 0x66),
// which identifies the file as utilizing the Time Zone Information Format.
var Magic = [4]byte{'T', 'Z', 'i', 'f'}

// ErrFormat is returned when data is not a well-formed TZif file.
var ErrFormat = errors.New("tzif: malformed file")

// Header is the header of a TZif file.
//
// A TZif header is structured as follows (the lengths of multi-octet
// fields are shown in parentheses):
//
//	+---------------+---+
//	|  magic    (4) |ver|
//	+---------------+---+---------------------------------------+
//	|           [unused - reserved for future use] (15)         |
//	+---------------+---------------+---------------+-----------+
//	|  isutcnt  (4) |  isstdcnt (4) |  leapcnt  (4) |
//	+---------------+---------------+---------------+
//	|  timecnt  (4) |  typecnt  (4) |  charcnt  (4) |
//	+---------------+---------------+---------------+
type Header struct {
	Version  Version
	Reserved [15]byte
	Isutcnt  uint32
	Isstdcnt uint32
	Leapcnt  uint32
	Timecnt  uint32
	Typecnt  uint32
	Charcnt  uint32
}

func (h Header) write(w io.Writer) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	return binary.Write(w, order, h)
}

func readHeader(r io.Reader) (Header, error) {
	var (
		h     Header
		magic [4]byte
	)
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, fmt.Errorf("reading magic: %w", err)
	}
	if magic != Magic {
		return h, fmt.Errorf("%w: invalid magic %q", ErrFormat, magic[:])
	}
	if err := binary.Read(r, order, &h); err != nil {
		return h, fmt.Errorf("reading header: %w", err)
	}
	return h, nil
}

// LocalTimeType is a local time type record: an offset, whether it is
// daylight saving time, and the index of its designation.
type LocalTimeType struct {
	Utoff int32
	IsDST bool
	Idx   uint8
}

// LeapSecond is a leap-second record. The rule engine ignores leap
// seconds, so files carrying any are rejected by ToRuleSet.
type LeapSecond struct {
	Occur int64
	Corr  int32
}

// DataBlock holds the data of a TZif data block. Version 1 blocks store
// times as 32-bit values; the fields are widened here.
//
//	+---------------------------------------------------------+
//	|  transition times          (timecnt x TIME_SIZE)        |
//	+---------------------------------------------------------+
//	|  transition types          (timecnt)                    |
//	+---------------------------------------------------------+
//	|  local time type records   (typecnt x 6)                |
//	+---------------------------------------------------------+
//	|  time zone designations    (charcnt)                    |
//	+---------------------------------------------------------+
//	|  leap-second records       (leapcnt x (TIME_SIZE + 4))  |
//	+---------------------------------------------------------+
//	|  standard/wall indicators  (isstdcnt)                   |
//	+---------------------------------------------------------+
//	|  UT/local indicators       (isutcnt)                    |
//	+---------------------------------------------------------+
type DataBlock struct {
	TransitionTimes        []int64
	TransitionTypes        []uint8
	LocalTimeTypes         []LocalTimeType
	Designations           []byte
	LeapSeconds            []LeapSecond
	StandardWallIndicators []bool
	UTLocalIndicators      []bool
}

// header returns the header describing the block.
func (b DataBlock) header(v Version) Header {
	return Header{
		Version:  v,
		Isutcnt:  uint32(len(b.UTLocalIndicators)),
		Isstdcnt: uint32(len(b.StandardWallIndicators)),
		Leapcnt:  uint32(len(b.LeapSeconds)),
		Timecnt:  uint32(len(b.TransitionTimes)),
		Typecnt:  uint32(len(b.LocalTimeTypes)),
		Charcnt:  uint32(len(b.Designations)),
	}
}

func (b DataBlock) write(w io.Writer, wide bool) error {
	writeTime := func(t int64) error {
		if wide {
			return binary.Write(w, order, t)
		}
		return binary.Write(w, order, int32(t))
	}
	for _, t := range b.TransitionTimes {
		if err := writeTime(t); err != nil {
			return err
		}
	}
	if _, err := w.Write(b.TransitionTypes); err != nil {
		return err
	}
	for _, t := range b.LocalTimeTypes {
		if err := binary.Write(w, order, t); err != nil {
			return err
		}
	}
	if _, err := w.Write(b.Designations); err != nil {
		return err
	}
	for _, l := range b.LeapSeconds {
		if err := writeTime(l.Occur); err != nil {
			return err
		}
		if err := binary.Write(w, order, l.Corr); err != nil {
			return err
		}
	}
	if err := binary.Write(w, order, b.StandardWallIndicators); err != nil {
		return err
	}
	return binary.Write(w, order, b.UTLocalIndicators)
}

// maxCount bounds every count of a header so that a corrupt header cannot
// make readDataBlock allocate gigabytes.
const maxCount = 1 << 20

func readDataBlock(r io.Reader, h Header, wide bool) (DataBlock, error) {
	var b DataBlock
	for _, n := range []uint32{h.Isutcnt, h.Isstdcnt, h.Leapcnt, h.Timecnt, h.Typecnt, h.Charcnt} {
		if n > maxCount {
			return b, fmt.Errorf("%w: count %d too large", ErrFormat, n)
		}
	}
	readTime := func() (int64, error) {
		if wide {
			var t int64
			err := binary.Read(r, order, &t)
			return t, err
		}
		var t int32
		err := binary.Read(r, order, &t)
		return int64(t), err
	}

	b.TransitionTimes = make([]int64, h.Timecnt)
	for i := range b.TransitionTimes {
		t, err := readTime()
		if err != nil {
			return b, fmt.Errorf("reading transition times: %w", err)
		}
		b.TransitionTimes[i] = t
	}
	b.TransitionTypes = make([]uint8, h.Timecnt)
	if _, err := io.ReadFull(r, b.TransitionTypes); err != nil {
		return b, fmt.Errorf("reading transition types: %w", err)
	}
	b.LocalTimeTypes = make([]LocalTimeType, h.Typecnt)
	if err := binary.Read(r, order, b.LocalTimeTypes); err != nil {
		return b, fmt.Errorf("reading local time type records: %w", err)
	}
	b.Designations = make([]byte, h.Charcnt)
	if _, err := io.ReadFull(r, b.Designations); err != nil {
		return b, fmt.Errorf("reading time zone designations: %w", err)
	}
	b.LeapSeconds = make([]LeapSecond, h.Leapcnt)
	for i := range b.LeapSeconds {
		occur, err := readTime()
		if err == nil {
			err = binary.Read(r, order, &b.LeapSeconds[i].Corr)
		}
		if err != nil {
			return b, fmt.Errorf("reading leap second records: %w", err)
		}
		b.LeapSeconds[i].Occur = occur
	}
	b.StandardWallIndicators = make([]bool, h.Isstdcnt)
	if err := binary.Read(r, order, b.StandardWallIndicators); err != nil {
		return b, fmt.Errorf("reading standard/wall indicators: %w", err)
	}
	b.UTLocalIndicators = make([]bool, h.Isutcnt)
	if err := binary.Read(r, order, b.UTLocalIndicators); err != nil {
		return b, fmt.Errorf("reading UT/local indicators: %w", err)
	}
	return b, nil
}

// File is a decoded TZif file. V2 and TZString are only present in
// files of version V2 and later.
type File struct {
	Version  Version
	V1       DataBlock
	V2       DataBlock
	TZString string
}

// Data returns the data block readers should use: the 64-bit block if the
// file has one.
func (f File) Data() DataBlock {
	if f.Version >= V2 {
		return f.V2
	}
	return f.V1
}

// Encode writes the file to w.
func (f File) Encode(w io.Writer) error {
	if err := f.V1.header(f.Version).write(w); err != nil {
		return fmt.Errorf("write v1 header: %w", err)
	}
	if err := f.V1.write(w, false); err != nil {
		return fmt.Errorf("write v1 data: %w", err)
	}
	if f.Version < V2 {
		return nil
	}
	if err := f.V2.header(f.Version).write(w); err != nil {
		return fmt.Errorf("write v2 header: %w", err)
	}
	if err := f.V2.write(w, true); err != nil {
		return fmt.Errorf("write v2 data: %w", err)
	}
	if _, err := fmt.Fprintf(w, "\n%s\n", f.TZString); err != nil {
		return fmt.Errorf("write footer: %w", err)
	}
	return nil
}

// MarshalBinary returns the encoded file.
func (f File) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := f.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode reads a TZif file from r and validates it.
func Decode(r io.Reader) (File, error) {
	var f File
	br := bufio.NewReader(r)

	h1, err := readHeader(br)
	if err != nil {
		return f, fmt.Errorf("read v1 header: %w", err)
	}
	f.Version = h1.Version
	if f.V1, err = readDataBlock(br, h1, false); err != nil {
		return f, fmt.Errorf("read v1 data block: %w", err)
	}

	if f.Version >= V2 {
		h2, err := readHeader(br)
		if err != nil {
			return f, fmt.Errorf("read v2 header: %w", err)
		}
		if h2.Version != h1.Version {
			return f, fmt.Errorf("%w: v1 header version %v, v2 header version %v", ErrFormat, h1.Version, h2.Version)
		}
		if f.V2, err = readDataBlock(br, h2, true); err != nil {
			return f, fmt.Errorf("read v2 data block: %w", err)
		}
		if f.TZString, err = readFooter(br); err != nil {
			return f, fmt.Errorf("read footer: %w", err)
		}
	}

	if err := Validate(f); err != nil {
		return f, err
	}
	return f, nil
}

func readFooter(r *bufio.Reader) (string, error) {
	nl, err := r.ReadByte()
	if err != nil {
		return "", err
	}
	if nl != '\n' {
		return "", fmt.Errorf("%w: footer does not start with a newline", ErrFormat)
	}
	s, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("%w: unterminated TZ string", ErrFormat)
	}
	return s[:len(s)-1], nil
}
