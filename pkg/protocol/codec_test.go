package protocol

import (
	"io"
	"testing"
)

func TestEncoderDecoder(t *testing.T) {
	e := NewEncoder()

	e.WriteByte(0x42)
	e.WriteBytes([]byte{0x01, 0x02, 0x03})
	e.WriteUvarint(12345)
	e.WriteString("hello world")
	e.WriteLenBytes([]byte{0xDE, 0xAD, 0xBE, 0xEF})
	e.WriteBool(true)
	e.WriteBool(false)
	e.WriteUint16(0x1234)
	e.WriteUint32(0x12345678)
	e.WriteUint64(0x123456789ABCDEF0)

	d := NewDecoder(e.Bytes())

	b, err := d.ReadByte()
	if err != nil || b != 0x42 {
		t.Errorf("ReadByte() = %x, %v; want 0x42, nil", b, err)
	}

	bs, err := d.ReadBytes(3)
	if err != nil || string(bs) != "\x01\x02\x03" {
		t.Errorf("ReadBytes(3) = %v, %v; want [1 2 3], nil", bs, err)
	}

	uv, err := d.ReadUvarint()
	if err != nil || uv != 12345 {
		t.Errorf("ReadUvarint() = %d, %v; want 12345, nil", uv, err)
	}

	s, err := d.ReadString()
	if err != nil || s != "hello world" {
		t.Errorf("ReadString() = %q, %v; want \"hello world\", nil", s, err)
	}

	lb, err := d.ReadLenBytes()
	if err != nil || string(lb) != "\xDE\xAD\xBE\xEF" {
		t.Errorf("ReadLenBytes() = %v, %v", lb, err)
	}

	bt, err := d.ReadBool()
	if err != nil || bt != true {
		t.Errorf("ReadBool() = %v, %v; want true, nil", bt, err)
	}
	bf, err := d.ReadBool()
	if err != nil || bf != false {
		t.Errorf("ReadBool() = %v, %v; want false, nil", bf, err)
	}

	u16, err := d.ReadUint16()
	if err != nil || u16 != 0x1234 {
		t.Errorf("ReadUint16() = %x, %v; want 0x1234, nil", u16, err)
	}
	u32, err := d.ReadUint32()
	if err != nil || u32 != 0x12345678 {
		t.Errorf("ReadUint32() = %x, %v; want 0x12345678, nil", u32, err)
	}
	u64, err := d.ReadUint64()
	if err != nil || u64 != 0x123456789ABCDEF0 {
		t.Errorf("ReadUint64() = %x, %v", u64, err)
	}

	if !d.EOF() {
		t.Errorf("decoder should be at EOF, %d bytes remain", d.Remaining())
	}
}

func TestDecoderShortBuffer(t *testing.T) {
	d := NewDecoder([]byte{0x01})
	if _, err := d.ReadUint32(); err != io.ErrUnexpectedEOF {
		t.Errorf("ReadUint32() error = %v, want %v", err, io.ErrUnexpectedEOF)
	}
}

func TestDecoderVarintOverflow(t *testing.T) {
	// 11 continuation bytes exceed the maximum varint length.
	buf := make([]byte, 11)
	for i := range buf {
		buf[i] = 0x80
	}
	d := NewDecoder(buf)
	if _, err := d.ReadUvarint(); err != ErrVarintOverflow {
		t.Errorf("ReadUvarint() error = %v, want %v", err, ErrVarintOverflow)
	}
}

func TestDecoderAllocationCap(t *testing.T) {
	e := NewEncoder()
	e.WriteUvarint(MaxAllocation + 1)
	d := NewDecoder(e.Bytes())
	if _, err := d.ReadLenBytes(); err != ErrAllocationTooLarge {
		t.Errorf("ReadLenBytes() error = %v, want %v", err, ErrAllocationTooLarge)
	}
}

func TestDecoderInvalidBool(t *testing.T) {
	d := NewDecoder([]byte{0x02})
	if _, err := d.ReadBool(); err != ErrInvalidBool {
		t.Errorf("ReadBool() error = %v, want %v", err, ErrInvalidBool)
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoder()
	e.WriteString("data")
	e.Reset()
	if e.Len() != 0 {
		t.Errorf("Len() after Reset = %d, want 0", e.Len())
	}
}
