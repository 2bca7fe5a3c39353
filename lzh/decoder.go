// Package lzh depacks the LHA/LZHUF container that YM5/YM6 files are
// wrapped in before the register stream starts. YM authoring tools
// write "ympack"-compressed files using the -lh5- method; this package
// only implements the subset of LZHUF actually seen in YM archives
// (-lh0-, -lh4-, -lh5-).
package lzh

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/retrochip/ym2149/errs"
)

// Algorithm constants, named the way the LZHUF literature and every
// LHA reimplementation in the wild names them, just spelled in Go
// case instead of C's.
const (
	charBit   = 8
	ucharMax  = 255
	bitBufSiz = 16
	dicBits   = 13
	dicSiz    = 1 << dicBits
	threshold = 3
	nChar     = ucharMax + 256 + 2 - threshold
	cBits     = 9
	codeBits  = 16
	nP        = dicBits + 1
	nT        = codeBits + 3
	pBits     = 4
	tBits     = 5
	nPT       = nT // nT > nP
	readBufSz = 4096
)

// decoder holds the bit-reader and Huffman-tree state for one LZHUF
// stream. It is not reused across files.
type decoder struct {
	input  *bytes.Reader
	output *bytes.Buffer

	bitBuf      uint16
	subBitBuf   uint8
	bitCount    int
	fillBufSize int
	fillBufIdx  int
	readBuf     [readBufSz]byte

	left    [2*nChar - 1]uint16
	right   [2*nChar - 1]uint16
	charLen [nChar]uint8
	ptLen   [nPT]uint8
	cTable  [4096]uint16
	ptTable [256]uint16

	blockSize  uint16
	matchLen   int
	matchPos   uint32
	windowBuf  [dicSiz]uint8
}

type lzhHeader struct {
	HeaderSize   uint8
	HeaderSum    uint8
	Method       [5]uint8
	PackedSize   uint32
	OriginalSize uint32
	FileTime     uint32
	Attribute    uint8
	Level        uint8
}

// Decompress depacks a -lh0-/-lh4-/-lh5- LHA entry, scanning data for
// the "-lhX-" method tag the way archivers that don't trust a fixed
// header offset do.
func Decompress(data []byte) ([]byte, error) {
	if len(data) < 7 {
		return nil, errs.New(errs.InvalidFormat, "lzh data too small")
	}

	headerStart := -1
	for i := 0; i <= len(data)-7; i++ {
		if data[i+2] == '-' && data[i+3] == 'l' && data[i+4] == 'h' && data[i+6] == '-' {
			headerStart = i
			break
		}
	}
	if headerStart < 0 {
		return nil, errs.New(errs.InvalidFormat, "lzh header not found")
	}

	reader := bytes.NewReader(data[headerStart:])

	var header lzhHeader
	if err := binary.Read(reader, binary.LittleEndian, &header.HeaderSize); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "reading lzh header size")
	}
	if err := binary.Read(reader, binary.LittleEndian, &header.HeaderSum); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "reading lzh header checksum")
	}
	if _, err := reader.Read(header.Method[:]); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "reading lzh method tag")
	}

	method := string(header.Method[:])
	if method != "-lh5-" && method != "-lh4-" && method != "-lh0-" {
		return nil, errs.New(errs.Unsupported, "unsupported lzh method %q", method)
	}

	if err := binary.Read(reader, binary.LittleEndian, &header.PackedSize); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "reading lzh packed size")
	}
	if err := binary.Read(reader, binary.LittleEndian, &header.OriginalSize); err != nil {
		return nil, errs.Wrap(errs.InvalidFormat, err, "reading lzh original size")
	}

	// Already consumed 1+1+5+4+4 = 15 of HeaderSize+2 header bytes.
	if toSkip := int(header.HeaderSize) + 2 - 15; toSkip > 0 {
		if _, err := reader.Seek(int64(toSkip), io.SeekCurrent); err != nil {
			return nil, errs.Wrap(errs.InvalidFormat, err, "skipping lzh header extension")
		}
	}

	if method == "-lh0-" {
		out := make([]byte, header.OriginalSize)
		n, err := reader.Read(out)
		if err != nil && err != io.EOF {
			return nil, errs.Wrap(errs.IO, err, "reading stored lzh data")
		}
		if n != int(header.OriginalSize) {
			return nil, errs.New(errs.InvalidFormat, "incomplete lzh data: got %d, expected %d", n, header.OriginalSize)
		}
		return out, nil
	}

	packed := make([]byte, header.PackedSize)
	n, err := reader.Read(packed)
	if err != nil && err != io.EOF {
		return nil, errs.Wrap(errs.IO, err, "reading packed lzh data")
	}

	d := &decoder{
		input:  bytes.NewReader(packed[:n]),
		output: bytes.NewBuffer(make([]byte, 0, header.OriginalSize)),
	}
	if err := d.run(int(header.OriginalSize)); err != nil {
		return nil, err
	}
	return d.output.Bytes(), nil
}

func (d *decoder) fillBits(n int) {
	d.bitBuf = (d.bitBuf << n) & 0xffff
	for n > d.bitCount {
		d.bitBuf |= uint16(d.subBitBuf) << (n - d.bitCount)
		n -= d.bitCount

		if d.fillBufSize == 0 {
			d.fillBufIdx = 0
			nread, _ := d.input.Read(d.readBuf[:readBufSz-32])
			d.fillBufSize = nread
		}

		if d.fillBufSize > 0 {
			d.fillBufSize--
			d.subBitBuf = d.readBuf[d.fillBufIdx]
			d.fillBufIdx++
		} else {
			d.subBitBuf = 0
		}
		d.bitCount = charBit
	}
	d.bitCount -= n
	d.bitBuf |= uint16(d.subBitBuf) >> d.bitCount
}

func (d *decoder) getBits(n int) uint16 {
	x := d.bitBuf >> (bitBufSiz - n)
	d.fillBits(n)
	return x
}

func (d *decoder) initGetBits() {
	d.bitBuf = 0
	d.subBitBuf = 0
	d.bitCount = 0
	d.fillBufSize = 0
	d.fillBits(bitBufSiz)
}

// makeTable builds a canonical Huffman decode table from a list of
// per-symbol code lengths, falling back to tree nodes in left/right
// for codes longer than tableBits.
func (d *decoder) makeTable(symbolCount int, codeLen []uint8, tableBits int, table []uint16) {
	var count [17]uint16
	var weight [17]uint16
	var start [18]uint16

	for i := 0; i < symbolCount; i++ {
		if codeLen[i] > 0 && codeLen[i] <= 16 {
			count[codeLen[i]]++
		}
	}

	start[1] = 0
	for i := 1; i <= 16; i++ {
		start[i+1] = start[i] + (count[i] << (16 - i))
	}

	jutBits := 16 - tableBits
	for i := 1; i <= tableBits; i++ {
		start[i] >>= jutBits
		weight[i] = 1 << (tableBits - i)
	}
	for i := tableBits + 1; i <= 16; i++ {
		weight[i] = 1 << (16 - i)
	}

	if i := int(start[tableBits+1] >> jutBits); i != 0 && i < (1<<16) {
		k := 1 << tableBits
		for j := i; j < k && j < len(table); j++ {
			table[j] = 0
		}
	}

	avail := uint16(symbolCount)
	mask := uint16(1 << (15 - tableBits))

	for ch := 0; ch < symbolCount; ch++ {
		length := int(codeLen[ch])
		if length == 0 {
			continue
		}

		next := start[length] + weight[length]
		if length <= tableBits {
			for i := int(start[length]); i < int(next) && i < len(table); i++ {
				table[i] = uint16(ch)
			}
		} else {
			k := start[length]
			idx := int(k >> jutBits)
			if idx >= len(table) {
				start[length] = next
				continue
			}
			p := &table[idx]
			remaining := length - tableBits
			for remaining > 0 {
				if *p == 0 {
					if int(avail) >= len(d.left) {
						break
					}
					d.right[avail] = 0
					d.left[avail] = 0
					*p = avail
					avail++
				}
				if int(*p) >= len(d.left) {
					break
				}
				if (k & mask) != 0 {
					p = &d.right[*p]
				} else {
					p = &d.left[*p]
				}
				k <<= 1
				remaining--
			}
			if remaining == 0 {
				*p = uint16(ch)
			}
		}
		start[length] = next
	}
}

func (d *decoder) readPtLen(symbolCount, bits, specialIdx int) {
	n := d.getBits(bits)

	if n == 0 {
		c := d.getBits(bits)
		for i := 0; i < symbolCount; i++ {
			d.ptLen[i] = 0
		}
		for i := 0; i < 256; i++ {
			d.ptTable[i] = c
		}
		return
	}

	i := 0
	for i < int(n) {
		c := int(d.bitBuf >> (bitBufSiz - 3))
		if c == 7 {
			mask := uint16(1 << (bitBufSiz - 1 - 3))
			for (mask & d.bitBuf) != 0 {
				mask >>= 1
				c++
			}
		}
		fillLen := 3
		if c >= 7 {
			fillLen = c - 3
		}
		d.fillBits(fillLen)
		d.ptLen[i] = uint8(c)
		i++

		if i == specialIdx {
			c := d.getBits(2)
			for c > 0 {
				d.ptLen[i] = 0
				i++
				c--
			}
		}
	}
	for i < symbolCount {
		d.ptLen[i] = 0
		i++
	}
	d.makeTable(symbolCount, d.ptLen[:], 8, d.ptTable[:])
}

func (d *decoder) readCharLen() {
	n := d.getBits(cBits)

	if n == 0 {
		c := d.getBits(cBits)
		for i := 0; i < nChar; i++ {
			d.charLen[i] = 0
		}
		for i := 0; i < 4096; i++ {
			d.cTable[i] = c
		}
		return
	}

	i := 0
	for i < int(n) {
		c := d.ptTable[d.bitBuf>>(bitBufSiz-8)]
		if c >= nT {
			mask := uint16(1 << (bitBufSiz - 1 - 8))
			for c >= nT {
				if (d.bitBuf & mask) != 0 {
					c = d.right[c]
				} else {
					c = d.left[c]
				}
				mask >>= 1
			}
		}
		d.fillBits(int(d.ptLen[c]))

		if c <= 2 {
			switch c {
			case 0:
				c = 1
			case 1:
				c = d.getBits(4) + 3
			default:
				c = d.getBits(cBits) + 20
			}
			for c > 0 {
				d.charLen[i] = 0
				i++
				c--
			}
		} else {
			d.charLen[i] = uint8(c - 2)
			i++
		}
	}
	for i < nChar {
		d.charLen[i] = 0
		i++
	}
	d.makeTable(nChar, d.charLen[:], 12, d.cTable[:])
}

func (d *decoder) decodeChar() uint16 {
	if d.blockSize == 0 {
		d.blockSize = d.getBits(16)
		d.readPtLen(nT, tBits, 3)
		d.readCharLen()
		d.readPtLen(nP, pBits, -1)
	}
	d.blockSize--

	j := d.cTable[d.bitBuf>>(bitBufSiz-12)]
	if j >= nChar {
		mask := uint16(1 << (bitBufSiz - 1 - 12))
		for j >= nChar {
			if (d.bitBuf & mask) != 0 {
				j = d.right[j]
			} else {
				j = d.left[j]
			}
			mask >>= 1
		}
	}
	d.fillBits(int(d.charLen[j]))
	return j
}

func (d *decoder) decodePosition() uint16 {
	j := d.ptTable[d.bitBuf>>(bitBufSiz-8)]
	if j >= nP {
		mask := uint16(1 << (bitBufSiz - 1 - 8))
		for j >= nP {
			if (d.bitBuf & mask) != 0 {
				j = d.right[j]
			} else {
				j = d.left[j]
			}
			mask >>= 1
		}
	}
	d.fillBits(int(d.ptLen[j]))
	if j != 0 {
		j--
		j = (1 << j) + d.getBits(int(j))
	}
	return j
}

func (d *decoder) run(origSize int) error {
	d.initGetBits()
	d.blockSize = 0
	d.matchLen = 0

	for origSize > 0 {
		count := origSize
		if count > dicSiz {
			count = dicSiz
		}
		d.decodeBlock(count)
		if _, err := d.output.Write(d.windowBuf[:count]); err != nil {
			return errs.Wrap(errs.IO, err, "buffering lzh output")
		}
		origSize -= count
	}
	return nil
}

func (d *decoder) decodeBlock(count int) {
	r := uint32(0)

	for d.matchLen > 0 && r < uint32(count) {
		d.windowBuf[r] = d.windowBuf[d.matchPos]
		d.matchPos = (d.matchPos + 1) & (dicSiz - 1)
		r++
		d.matchLen--
	}

	for r < uint32(count) {
		c := d.decodeChar()

		if c <= ucharMax {
			d.windowBuf[r] = uint8(c)
			r++
			continue
		}

		d.matchLen = int(c) - (ucharMax + 1 - threshold)
		p := d.decodePosition()
		d.matchPos = (r - uint32(p) - 1) & (dicSiz - 1)

		for d.matchLen > 0 && r < uint32(count) {
			d.windowBuf[r] = d.windowBuf[d.matchPos]
			d.matchPos = (d.matchPos + 1) & (dicSiz - 1)
			r++
			d.matchLen--
		}
	}
}

// IsLZHCompressed reports whether data carries a "-lhX-" method tag
// at the offset every LHA archiver puts it.
func IsLZHCompressed(data []byte) bool {
	if len(data) < 7 {
		return false
	}
	return data[2] == '-' && data[3] == 'l' && data[4] == 'h' && data[6] == '-'
}

// GetCompressionMethod returns the five-byte method tag ("-lh5-", ...)
// or "" if data isn't LZH-tagged.
func GetCompressionMethod(data []byte) string {
	if !IsLZHCompressed(data) {
		return ""
	}
	return string(data[2:7])
}
