package main

/* Modbus RTU frame layout:
 *   [address 1][function 1][payload 0..252][crc 2, low byte first]
 * The decoder is pure and stateless: bytes in, decoded frame or a
 * rejection reason out. Transport concerns (silence gaps, resync)
 * belong to the sniffer, not here.
 */

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

type frameRole int

const (
	roleRequest frameRole = iota
	roleResponse
)

const (
	rtuMinSize = 4   // address + function + crc
	rtuMaxSize = 256 // address + function + 252 payload + crc
)

var (
	errFrameTooShort       = errors.New("frame too short")
	errChecksumMismatch    = errors.New("checksum mismatch")
	errUnsupportedFunction = errors.New("unsupported function code")
	errMalformedPayload    = errors.New("malformed payload")
)

const (
	fcReadCoils              = 0x01
	fcReadDiscreteInputs     = 0x02
	fcReadHoldingRegisters   = 0x03
	fcReadInputRegisters     = 0x04
	fcWriteSingleCoil        = 0x05
	fcWriteSingleRegister    = 0x06
	fcWriteMultipleCoils     = 0x0F
	fcWriteMultipleRegisters = 0x10
)

var functionNames = map[byte]string{
	fcReadCoils:              "ReadCoils",
	fcReadDiscreteInputs:     "ReadDiscreteInputs",
	fcReadHoldingRegisters:   "ReadHoldingRegisters",
	fcReadInputRegisters:     "ReadInputRegisters",
	fcWriteSingleCoil:        "WriteSingleCoil",
	fcWriteSingleRegister:    "WriteSingleRegister",
	fcWriteMultipleCoils:     "WriteMultipleCoils",
	fcWriteMultipleRegisters: "WriteMultipleRegisters",
}

func functionName(fn byte) string {
	name, ok := functionNames[fn&0x7f]
	if !ok {
		return fmt.Sprintf("Function 0x%02X", fn)
	}
	if fn&0x80 != 0 {
		return name + " (exception)"
	}
	return name
}

func exceptionName(code byte) string {
	switch code {
	case 1:
		return "illegal function"
	case 2:
		return "illegal data address"
	case 3:
		return "illegal data value"
	case 4:
		return "server device failure"
	case 5:
		return "acknowledge"
	case 6:
		return "server device busy"
	default:
		return fmt.Sprintf("exception 0x%02X", code)
	}
}

// decodedFrame is the logical view of a validated RTU frame. Which fields
// are meaningful depends on the function code and role.
type decodedFrame struct {
	address  byte
	function byte
	role     frameRole

	start     uint16   // read/write start or single address
	quantity  uint16   // registers or coils
	value     uint16   // write-single value
	registers []uint16 // read response values
	coilBytes []byte   // packed coil bits

	exception bool
	excCode   byte
}

// decodeFrame validates raw against the RTU layout and decodes the payload
// according to the function code and the expected role.
func decodeFrame(raw []byte, role frameRole) (decodedFrame, error) {
	df := decodedFrame{role: role}

	// Frames shorter than the minimum cannot carry a CRC. If there is at
	// least a function byte and it is unrecognised, report that instead;
	// "01 09" is a more useful diagnostic as an unknown function than as
	// a truncated frame.
	if len(raw) < rtuMinSize {
		if len(raw) >= 2 {
			if _, ok := functionNames[raw[1]&0x7f]; !ok {
				return df, fmt.Errorf("%w: 0x%02X", errUnsupportedFunction, raw[1])
			}
		}
		return df, fmt.Errorf("%w: %d bytes", errFrameTooShort, len(raw))
	}

	carried := binary.LittleEndian.Uint16(raw[len(raw)-2:])
	computed := modbusCRC(raw[:len(raw)-2])
	if carried != computed {
		return df, fmt.Errorf("%w: carried %04X computed %04X", errChecksumMismatch, carried, computed)
	}

	df.address = raw[0]
	df.function = raw[1]
	payload := raw[2 : len(raw)-2]

	if df.function&0x80 != 0 && role == roleResponse {
		if _, ok := functionNames[df.function&0x7f]; !ok {
			return df, fmt.Errorf("%w: 0x%02X", errUnsupportedFunction, df.function)
		}
		if len(payload) != 1 {
			return df, fmt.Errorf("%w: exception response wants 1 byte, got %d", errMalformedPayload, len(payload))
		}
		df.exception = true
		df.excCode = payload[0]
		return df, nil
	}

	if _, ok := functionNames[df.function]; !ok {
		return df, fmt.Errorf("%w: 0x%02X", errUnsupportedFunction, df.function)
	}

	if role == roleRequest {
		return decodeRequestPayload(df, payload)
	}
	return decodeResponsePayload(df, payload)
}

func decodeRequestPayload(df decodedFrame, payload []byte) (decodedFrame, error) {
	switch df.function {
	case fcReadCoils, fcReadDiscreteInputs, fcReadHoldingRegisters, fcReadInputRegisters:
		if len(payload) != 4 {
			return df, payloadSizeError("read request", 4, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.quantity = binary.BigEndian.Uint16(payload[2:4])

	case fcWriteSingleCoil, fcWriteSingleRegister:
		if len(payload) != 4 {
			return df, payloadSizeError("write-single request", 4, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.value = binary.BigEndian.Uint16(payload[2:4])

	case fcWriteMultipleCoils:
		if len(payload) < 5 {
			return df, payloadSizeError("write-multiple request", 5, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.quantity = binary.BigEndian.Uint16(payload[2:4])
		count := int(payload[4])
		if count != (int(df.quantity)+7)/8 || len(payload) != 5+count {
			return df, fmt.Errorf("%w: %d coil bytes for %d coils", errMalformedPayload, count, df.quantity)
		}
		df.coilBytes = payload[5:]

	case fcWriteMultipleRegisters:
		if len(payload) < 5 {
			return df, payloadSizeError("write-multiple request", 5, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.quantity = binary.BigEndian.Uint16(payload[2:4])
		count := int(payload[4])
		if count != int(df.quantity)*2 || len(payload) != 5+count {
			return df, fmt.Errorf("%w: %d register bytes for %d registers", errMalformedPayload, count, df.quantity)
		}
		df.registers = bytesToRegisters(payload[5:])
	}
	return df, nil
}

func decodeResponsePayload(df decodedFrame, payload []byte) (decodedFrame, error) {
	switch df.function {
	case fcReadCoils, fcReadDiscreteInputs:
		if len(payload) < 1 || len(payload) != 1+int(payload[0]) {
			return df, fmt.Errorf("%w: coil response byte count", errMalformedPayload)
		}
		df.coilBytes = payload[1:]

	case fcReadHoldingRegisters, fcReadInputRegisters:
		if len(payload) < 1 || len(payload) != 1+int(payload[0]) || payload[0]%2 != 0 {
			return df, fmt.Errorf("%w: register response byte count", errMalformedPayload)
		}
		df.registers = bytesToRegisters(payload[1:])
		df.quantity = uint16(len(df.registers))

	case fcWriteSingleCoil, fcWriteSingleRegister:
		// Echo of the request.
		if len(payload) != 4 {
			return df, payloadSizeError("write-single response", 4, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.value = binary.BigEndian.Uint16(payload[2:4])

	case fcWriteMultipleCoils, fcWriteMultipleRegisters:
		if len(payload) != 4 {
			return df, payloadSizeError("write-multiple response", 4, len(payload))
		}
		df.start = binary.BigEndian.Uint16(payload[0:2])
		df.quantity = binary.BigEndian.Uint16(payload[2:4])
	}
	return df, nil
}

func payloadSizeError(what string, want, got int) error {
	return fmt.Errorf("%w: %s wants %d bytes, got %d", errMalformedPayload, what, want, got)
}

func bytesToRegisters(data []byte) []uint16 {
	regs := make([]uint16, len(data)/2)
	for i := range regs {
		regs[i] = binary.BigEndian.Uint16(data[2*i : 2*i+2])
	}
	return regs
}

// encodeReadRequest builds the wire bytes for a read request, CRC included.
func encodeReadRequest(address, function byte, start, quantity uint16) []byte {
	msg := make([]byte, 6)
	msg[0] = address
	msg[1] = function
	binary.BigEndian.PutUint16(msg[2:4], start)
	binary.BigEndian.PutUint16(msg[4:6], quantity)
	return appendCRC(msg)
}

func (df decodedFrame) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "device %d %s", df.address, functionName(df.function))
	if df.exception {
		fmt.Fprintf(&sb, ": %s", exceptionName(df.excCode))
		return sb.String()
	}
	switch df.function {
	case fcReadCoils, fcReadDiscreteInputs, fcReadHoldingRegisters, fcReadInputRegisters:
		if df.role == roleRequest {
			fmt.Fprintf(&sb, " start %d count %d", df.start, df.quantity)
		} else if df.registers != nil {
			fmt.Fprintf(&sb, " values %v", df.registers)
		} else {
			fmt.Fprintf(&sb, " coils % X", df.coilBytes)
		}
	case fcWriteSingleCoil, fcWriteSingleRegister:
		fmt.Fprintf(&sb, " register %d value %d", df.start, df.value)
	case fcWriteMultipleCoils, fcWriteMultipleRegisters:
		fmt.Fprintf(&sb, " start %d count %d", df.start, df.quantity)
	}
	return sb.String()
}
