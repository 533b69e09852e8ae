package main

import (
	"errors"
	"strings"
	"testing"
)

func mustDecode(t *testing.T, raw []byte, role frameRole) decodedFrame {
	t.Helper()
	df, err := decodeFrame(raw, role)
	if err != nil {
		t.Fatalf("decodeFrame(% X): %v", raw, err)
	}
	return df
}

func TestDecodeReadRequest(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02, 0x85, 0xD4}
	df := mustDecode(t, raw, roleRequest)
	if df.address != 1 || df.function != 0x03 {
		t.Fatalf("address/function wrong: %d/0x%02X", df.address, df.function)
	}
	if df.start != 100 || df.quantity != 2 {
		t.Fatalf("start/quantity wrong: %d/%d", df.start, df.quantity)
	}
}

func TestDecodeChecksumMismatch(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02, 0x00, 0x00}
	if _, err := decodeFrame(raw, roleRequest); !errors.Is(err, errChecksumMismatch) {
		t.Fatalf("expected errChecksumMismatch, got %v", err)
	}
}

func TestDecodeUnsupportedFunction(t *testing.T) {
	// Too short for a CRC, but the function byte already condemns it.
	if _, err := decodeFrame([]byte{0x01, 0x09}, roleRequest); !errors.Is(err, errUnsupportedFunction) {
		t.Fatalf("expected errUnsupportedFunction, got %v", err)
	}
	// Same function with a valid CRC must fail the same way.
	raw := appendCRC([]byte{0x01, 0x09})
	if _, err := decodeFrame(raw, roleRequest); !errors.Is(err, errUnsupportedFunction) {
		t.Fatalf("expected errUnsupportedFunction, got %v", err)
	}
}

func TestDecodeTooShort(t *testing.T) {
	if _, err := decodeFrame([]byte{0x01, 0x03}, roleRequest); !errors.Is(err, errFrameTooShort) {
		t.Fatalf("expected errFrameTooShort, got %v", err)
	}
	if _, err := decodeFrame(nil, roleRequest); !errors.Is(err, errFrameTooShort) {
		t.Fatalf("expected errFrameTooShort for empty input, got %v", err)
	}
}

func TestDecodeMalformedPayload(t *testing.T) {
	// Read request with a 3-byte payload.
	raw := appendCRC([]byte{0x01, 0x03, 0x00, 0x64, 0x00})
	if _, err := decodeFrame(raw, roleRequest); !errors.Is(err, errMalformedPayload) {
		t.Fatalf("expected errMalformedPayload, got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	raw := encodeReadRequest(9, fcReadInputRegisters, 0, 12)
	df := mustDecode(t, raw, roleRequest)
	if df.address != 9 || df.start != 0 || df.quantity != 12 {
		t.Fatalf("round trip lost fields: %+v", df)
	}
}

func TestDecodeReadResponse(t *testing.T) {
	raw := []byte{0x01, 0x03, 0x04, 0x00, 0xE6, 0x00, 0x32, 0x9A, 0x11}
	df := mustDecode(t, raw, roleResponse)
	if len(df.registers) != 2 || df.registers[0] != 230 || df.registers[1] != 50 {
		t.Fatalf("register values wrong: %v", df.registers)
	}
}

func TestDecodeReadResponseOddByteCount(t *testing.T) {
	raw := appendCRC([]byte{0x01, 0x03, 0x03, 0x00, 0xE6, 0x00})
	if _, err := decodeFrame(raw, roleResponse); !errors.Is(err, errMalformedPayload) {
		t.Fatalf("expected errMalformedPayload for odd byte count, got %v", err)
	}
}

func TestDecodeCoilResponse(t *testing.T) {
	raw := []byte{0x01, 0x01, 0x01, 0x05, 0x91, 0x8B}
	df := mustDecode(t, raw, roleResponse)
	if len(df.coilBytes) != 1 || df.coilBytes[0] != 0x05 {
		t.Fatalf("coil bytes wrong: % X", df.coilBytes)
	}
}

func TestDecodeWriteSingle(t *testing.T) {
	raw := []byte{0x01, 0x06, 0x00, 0x0A, 0x00, 0x64, 0xA8, 0x23}
	for _, role := range []frameRole{roleRequest, roleResponse} {
		df := mustDecode(t, raw, role)
		if df.start != 10 || df.value != 100 {
			t.Fatalf("role %v: register/value wrong: %d/%d", role, df.start, df.value)
		}
	}
}

func TestDecodeWriteMultipleRegisters(t *testing.T) {
	raw := []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x04, 0x00, 0x0A, 0x01, 0x02, 0x92, 0x30}
	df := mustDecode(t, raw, roleRequest)
	if df.start != 1 || df.quantity != 2 {
		t.Fatalf("start/quantity wrong: %d/%d", df.start, df.quantity)
	}
	if len(df.registers) != 2 || df.registers[0] != 10 || df.registers[1] != 0x0102 {
		t.Fatalf("register values wrong: %v", df.registers)
	}

	resp := []byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x10, 0x08}
	rdf := mustDecode(t, resp, roleResponse)
	if rdf.start != 1 || rdf.quantity != 2 {
		t.Fatalf("response start/quantity wrong: %d/%d", rdf.start, rdf.quantity)
	}
}

func TestDecodeWriteMultipleBadByteCount(t *testing.T) {
	// byteCount says 6 but quantity says 2 registers.
	raw := appendCRC([]byte{0x01, 0x10, 0x00, 0x01, 0x00, 0x02, 0x06, 0x00, 0x0A, 0x01, 0x02})
	if _, err := decodeFrame(raw, roleRequest); !errors.Is(err, errMalformedPayload) {
		t.Fatalf("expected errMalformedPayload, got %v", err)
	}
}

func TestDecodeWriteMultipleCoils(t *testing.T) {
	raw := []byte{0x01, 0x0F, 0x00, 0x00, 0x00, 0x0A, 0x02, 0xCD, 0x01, 0x70, 0x68}
	df := mustDecode(t, raw, roleRequest)
	if df.start != 0 || df.quantity != 10 {
		t.Fatalf("start/quantity wrong: %d/%d", df.start, df.quantity)
	}
	if len(df.coilBytes) != 2 || df.coilBytes[0] != 0xCD {
		t.Fatalf("coil bytes wrong: % X", df.coilBytes)
	}
}

func TestDecodeExceptionResponse(t *testing.T) {
	raw := []byte{0x01, 0x83, 0x02, 0xC0, 0xF1}
	df := mustDecode(t, raw, roleResponse)
	if !df.exception || df.excCode != 2 {
		t.Fatalf("exception not decoded: %+v", df)
	}
	if !strings.Contains(df.String(), "illegal data address") {
		t.Fatalf("String() missing exception name: %s", df)
	}
}

func TestDecodeExceptionNotARequest(t *testing.T) {
	// 0x83 has the exception bit set; in the request role that is just an
	// unknown function code.
	raw := []byte{0x01, 0x83, 0x02, 0xC0, 0xF1}
	if _, err := decodeFrame(raw, roleRequest); !errors.Is(err, errUnsupportedFunction) {
		t.Fatalf("expected errUnsupportedFunction, got %v", err)
	}
}

func TestFunctionNames(t *testing.T) {
	if got := functionName(0x03); got != "ReadHoldingRegisters" {
		t.Fatalf("unexpected name: %s", got)
	}
	if got := functionName(0x83); got != "ReadHoldingRegisters (exception)" {
		t.Fatalf("unexpected exception name: %s", got)
	}
	if got := functionName(0x63); got != "Function 0x63" {
		t.Fatalf("unexpected fallback name: %s", got)
	}
}

func TestDecodedFrameString(t *testing.T) {
	df := mustDecode(t, []byte{0x01, 0x03, 0x00, 0x64, 0x00, 0x02, 0x85, 0xD4}, roleRequest)
	want := "device 1 ReadHoldingRegisters start 100 count 2"
	if df.String() != want {
		t.Fatalf("got %q want %q", df.String(), want)
	}
}
