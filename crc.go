package main

import "encoding/binary"

// modbusCRC computes the CRC-16/Modbus checksum: reflected polynomial
// 0xA001, initial value 0xFFFF. Transmitted low byte first on the wire.
func modbusCRC(msg []byte) uint16 {
	crc := uint16(0xffff)
	for _, b := range msg {
		crc ^= uint16(b)
		for bit := 0; bit < 8; bit++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return crc
}

// appendCRC returns msg with its CRC appended in wire order.
func appendCRC(msg []byte) []byte {
	out := make([]byte, len(msg)+2)
	copy(out, msg)
	binary.LittleEndian.PutUint16(out[len(msg):], modbusCRC(msg))
	return out
}

// validCRC reports whether the trailing two bytes of frame carry the
// correct CRC for the preceding bytes.
func validCRC(frame []byte) bool {
	if len(frame) < 4 {
		return false
	}
	carried := binary.LittleEndian.Uint16(frame[len(frame)-2:])
	return carried == modbusCRC(frame[:len(frame)-2])
}
