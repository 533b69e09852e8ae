package main

import (
	"encoding/binary"
	"testing"
)

func TestCRCReferenceVector(t *testing.T) {
	// Read holding registers: device 1, start 100, quantity 2.
	msg := []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02}
	crc := modbusCRC(msg)
	if crc != 0xD485 {
		t.Fatalf("expected 0xD485, got 0x%04X", crc)
	}
	// Low byte first on the wire.
	framed := appendCRC(msg)
	if framed[6] != 0x85 || framed[7] != 0xD4 {
		t.Fatalf("wire order wrong: % X", framed[6:])
	}
}

func TestCRCDeterministic(t *testing.T) {
	msg := []byte{0x01, 0x06, 0x00, 0x0A, 0x00, 0x64}
	first := modbusCRC(msg)
	for i := 0; i < 100; i++ {
		if got := modbusCRC(msg); got != first {
			t.Fatalf("call %d: got 0x%04X, first call gave 0x%04X", i, got, first)
		}
	}
}

func TestCRCEmptyInput(t *testing.T) {
	if crc := modbusCRC(nil); crc != 0xFFFF {
		t.Fatalf("empty input should leave the initial value, got 0x%04X", crc)
	}
}

func TestValidCRC(t *testing.T) {
	frame := appendCRC([]byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02})
	if !validCRC(frame) {
		t.Fatalf("appendCRC output should validate: % X", frame)
	}
	if validCRC(frame[:3]) {
		t.Fatal("short frame should not validate")
	}
	frame[len(frame)-1] ^= 0x01
	if validCRC(frame) {
		t.Fatal("corrupted CRC byte should not validate")
	}
}

func TestCRCDetectsSingleBitFlips(t *testing.T) {
	msg := []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02}
	orig := modbusCRC(msg)
	for i := range msg {
		for bit := 0; bit < 8; bit++ {
			flipped := make([]byte, len(msg))
			copy(flipped, msg)
			flipped[i] ^= 1 << bit
			if got := modbusCRC(flipped); got == orig {
				t.Fatalf("flipping byte %d bit %d left CRC unchanged at 0x%04X", i, bit, got)
			}
		}
	}
}

func TestCRCWireOrderRoundTrip(t *testing.T) {
	msg := []byte{0x0B, 0x04, 0x00, 0x00, 0x00, 0x01}
	framed := appendCRC(msg)
	carried := binary.LittleEndian.Uint16(framed[len(msg):])
	if carried != modbusCRC(msg) {
		t.Fatalf("carried 0x%04X != computed 0x%04X", carried, modbusCRC(msg))
	}
}
