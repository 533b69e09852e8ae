package main

/* Each poll client owns a serial bus with one or more slave devices on it.
 * Devices are configured with their modbus ID and the register ranges to
 * read; results land in the shared register store for the recorder.
 * Register numbers use the conventional numbering: a leading 3 means input
 * registers, a leading 4 means holding registers (30001, 40001, ...).
 * The store holds one bank per device ID, so IDs must be unique across
 * all configured buses.
 */

import (
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
)

type pollAction struct {
	opType         int
	startRegister  uint16
	finishRegister uint16
	numRegs        uint16
	errors         int
	delay          time.Duration
}

type polledDevice struct {
	id      byte
	client  modbus.Client
	actions []*pollAction
}

type pollBus struct {
	devices []polledDevice
}

var pollBusses []pollBus
var maxErrors = 10
var defaultDelay time.Duration = 500

func splitRegisterNumber(num int) (typ int, reg uint16, err error) {
	sVal := fmt.Sprintf("%d", num)
	if len(sVal) < 2 {
		return 0, 0, fmt.Errorf("register number %d too short", num)
	}
	typ, err = strconv.Atoi(sVal[:1])
	if err != nil {
		return
	}
	regi, err := strconv.Atoi(sVal[1:])
	if err != nil {
		return
	}
	reg = uint16(regi) - 1
	return
}

func startPolling(cfg rtuData) error {
	bus := pollBus{}
	for _, dev := range cfg.Devices {
		addStandardDevice(dev.ID)

		handler := modbus.NewRTUClientHandler(cfg.Devicename)
		handler.BaudRate = cfg.Baudrate
		handler.DataBits = 8
		handler.Parity = cfg.Parity
		handler.StopBits = 1
		handler.SlaveId = dev.ID
		handler.Timeout = 1 * time.Second

		if err := handler.Connect(); err != nil {
			log.Printf("Unable to connect: %s", err)
			return err
		}

		pDev := polledDevice{id: dev.ID, client: modbus.NewClient(handler)}
		for _, rng := range dev.Ranges {
			act, err := pollActionFromConfig(rng)
			if err != nil {
				log.Print(err)
				continue
			}
			pDev.actions = append(pDev.actions, act)
		}
		if len(pDev.actions) == 0 {
			log.Printf("No valid register ranges found for device %d on %s", dev.ID, cfg.Devicename)
			continue
		}
		bus.devices = append(bus.devices, pDev)
	}
	if len(bus.devices) == 0 {
		log.Printf("No devices configured for bus %s", cfg.Devicename)
		return nil
	}
	pollBusses = append(pollBusses, bus)
	go bus.collect()
	return nil
}

func pollActionFromConfig(rng regRange) (*pollAction, error) {
	sType, startReg, err := splitRegisterNumber(rng.Start)
	if err != nil {
		return nil, err
	}
	fType, finishReg, err := splitRegisterNumber(rng.Finish)
	if err != nil {
		return nil, err
	}
	if sType != fType {
		return nil, fmt.Errorf("range types do not match: %d vs %d", sType, fType)
	}
	if finishReg < startReg {
		return nil, fmt.Errorf("finish register %d below start register %d", finishReg, startReg)
	}
	delay := defaultDelay
	if rng.Delay > 0 {
		delay = time.Duration(rng.Delay)
	}
	// Ranges are inclusive: 40001..40010 reads all ten registers.
	return &pollAction{opType: sType, startRegister: startReg, finishRegister: finishReg,
		numRegs: finishReg - startReg + 1, delay: delay}, nil
}

func (bus pollBus) collect() {
	for {
		for _, dev := range bus.devices {
			for _, act := range dev.actions {
				if act.errors >= maxErrors {
					continue
				}
				var (
					results []byte
					err     error
					mErr    modbusError
					regA    *registerAccess
				)
				switch act.opType {
				case 3:
					results, err = dev.client.ReadInputRegisters(act.startRegister, act.numRegs)
					regA, mErr = getRegisterAccess(dev.id, 4)
				case 4:
					results, err = dev.client.ReadHoldingRegisters(act.startRegister, act.numRegs)
					regA, mErr = getRegisterAccess(dev.id, 3)
				}
				if err != nil {
					act.errors++
					log.Printf("Device %d: %v failed: %v", dev.id, act, err)
					if act.errors == maxErrors {
						log.Printf("Device %d: disabling %v after %d errors", dev.id, act, maxErrors)
					}
					continue
				}
				act.errors = 0
				if len(results) == 0 {
					continue
				}
				if mErr != modbusSuccess {
					log.Printf("Device %d: no register bank: %s", dev.id, mErr)
					continue
				}
				if mErr = regA.Write(int(act.startRegister), int(act.numRegs), results); mErr != modbusSuccess {
					log.Printf("Unable to write data to registers: %s", mErr)
				}
				time.Sleep(act.delay * time.Millisecond)
			}
		}
	}
}

func opString(op int) string {
	switch op {
	case 3:
		return "ReadInputRegisters"
	case 4:
		return "ReadHoldingRegisters"
	default:
		return fmt.Sprintf("OpCode %d", op)
	}
}

func (act pollAction) String() string {
	return fmt.Sprintf("%s from %d to %d", opString(act.opType), act.startRegister, act.finishRegister)
}
