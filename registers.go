package main

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
)

// modbusError mirrors the Modbus exception codes used when register access
// fails; it is a plain value so success comparisons stay cheap.
type modbusError struct {
	code byte
	text string
}

func (e modbusError) String() string {
	return e.text
}

var (
	modbusSuccess  = modbusError{0, "success"}
	illegalFunc    = modbusError{1, "illegal function"}
	illegalAddress = modbusError{2, "illegal data address"}
	unknownDevice  = modbusError{11, "gateway target device failed to respond"}
)

const registerCount = 256

type register struct {
	data [registerCount]uint16
	rw   sync.RWMutex
}

type registerReader func(*register, int, int) ([]byte, modbusError)
type registerWriter func(*register, int, int, []byte) modbusError

type registerAccess struct {
	reg    *register
	reader registerReader
	writer registerWriter
}

// devices is written during startup registration while poll goroutines are
// already reading it, so access goes through devicesMu.
var (
	devices   = make(map[byte]map[byte]*registerAccess)
	devicesMu sync.RWMutex
)

func makeRegisterAccess(reader registerReader, writer registerWriter) *registerAccess {
	return &registerAccess{reg: &register{}, reader: reader, writer: writer}
}

// addStandardDevice registers a holding (fn 3) and input (fn 4) register
// bank for a device so polled data has somewhere to live.
func addStandardDevice(deviceNum byte) error {
	devicesMu.Lock()
	defer devicesMu.Unlock()
	if _, ck := devices[deviceNum]; ck {
		return fmt.Errorf("device %d already registered?", deviceNum)
	}
	devices[deviceNum] = map[byte]*registerAccess{
		3: makeRegisterAccess(readRegisters, writeRegisters),
		4: makeRegisterAccess(readRegisters, writeRegisters),
	}
	log.Printf("Added standard device #%d", deviceNum)
	return nil
}

func getRegisterAccess(deviceNum, function byte) (*registerAccess, modbusError) {
	devicesMu.RLock()
	defer devicesMu.RUnlock()
	deviceRegisters, ck := devices[deviceNum]
	if !ck {
		return nil, unknownDevice
	}
	regA, ck := deviceRegisters[function]
	if !ck {
		log.Printf("Request for unregistered function #%d on device #%d", function, deviceNum)
		return nil, illegalFunc
	}
	return regA, modbusSuccess
}

func (ra *registerAccess) Read(regStart, numReg int) ([]byte, modbusError) {
	if ra.reader == nil {
		return []byte{}, illegalFunc
	}
	return ra.reader(ra.reg, regStart, numReg)
}

func (ra *registerAccess) Write(regStart, numReg int, bytes []byte) modbusError {
	if ra.writer == nil {
		return illegalFunc
	}
	return ra.writer(ra.reg, regStart, numReg, bytes)
}

func readRegisters(reg *register, regStart, numReg int) ([]byte, modbusError) {
	regEnd := regStart + numReg
	if regStart < 0 || regEnd > registerCount {
		return []byte{}, illegalAddress
	}
	bytes := make([]byte, numReg*2+1)
	bytes[0] = byte(numReg * 2)

	idx := 1
	reg.rw.RLock()
	for n := regStart; n < regEnd; n++ {
		binary.BigEndian.PutUint16(bytes[idx:idx+2], reg.data[n])
		idx += 2
	}
	reg.rw.RUnlock()
	return bytes, modbusSuccess
}

func writeRegisters(reg *register, regStart, numReg int, bytes []byte) modbusError {
	regEnd := regStart + numReg
	if regStart < 0 || regEnd > registerCount || len(bytes) < numReg*2 {
		return illegalAddress
	}

	idx := 0
	reg.rw.Lock()
	for n := regStart; n < regEnd; n++ {
		reg.data[n] = uint16(bytes[idx])<<8 + uint16(bytes[idx+1])
		idx += 2
	}
	reg.rw.Unlock()
	return modbusSuccess
}
