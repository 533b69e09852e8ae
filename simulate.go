package main

import (
	"fmt"
	"log"
	"time"

	"github.com/goburrow/serial"
	"github.com/tbrandon/mbserver"
)

// startSimulator runs a Modbus slave with register contents seeded from the
// configuration, giving learners a live peer to poll and sniff. A TCP
// listener is always started; an RTU listener is added when a serial
// device is configured.
func startSimulator() (*mbserver.Server, error) {
	sim := mbserver.NewServer()

	for _, sr := range appConfig.Simulator.Holding {
		if sr.Register < 0 || sr.Register >= len(sim.HoldingRegisters) {
			log.Printf("Simulator: holding register %d out of range, skipped", sr.Register)
			continue
		}
		sim.HoldingRegisters[sr.Register] = sr.Value
	}
	for _, sr := range appConfig.Simulator.Input {
		if sr.Register < 0 || sr.Register >= len(sim.InputRegisters) {
			log.Printf("Simulator: input register %d out of range, skipped", sr.Register)
			continue
		}
		sim.InputRegisters[sr.Register] = sr.Value
	}

	tcpAddr := appConfig.Simulator.TCPAddress
	if tcpAddr == "" {
		tcpAddr = "127.0.0.1:1502"
	}
	if err := sim.ListenTCP(tcpAddr); err != nil {
		return nil, fmt.Errorf("simulator TCP listen on %s: %v", tcpAddr, err)
	}
	log.Printf("Simulator: listening on tcp %s", tcpAddr)

	if appConfig.Simulator.Devicename != "" {
		rtuConfig := serial.Config{
			Address:  appConfig.Simulator.Devicename,
			BaudRate: appConfig.Simulator.Baudrate,
			DataBits: 8,
			StopBits: 1,
			Parity:   appConfig.Simulator.Parity,
			Timeout:  1 * time.Second,
		}
		if err := sim.ListenRTU(&rtuConfig); err != nil {
			sim.Close()
			return nil, fmt.Errorf("simulator RTU listen on %s: %v", rtuConfig.Address, err)
		}
		log.Printf("Simulator: listening on serial %s", rtuConfig.Address)
	}

	for _, sr := range appConfig.Simulator.Holding {
		if sr.Name != "" {
			log.Printf("Simulator: holding register %d is %s", sr.Register, sr.Name)
		}
	}
	for _, sr := range appConfig.Simulator.Input {
		if sr.Name != "" {
			log.Printf("Simulator: input register %d is %s", sr.Register, sr.Name)
		}
	}

	return sim, nil
}
