package main

import (
	"flag"
	"fmt"
	"log"
	"log/syslog"
	"os"
	"os/signal"
	"syscall"
)

func validMode(mode string) bool {
	switch mode {
	case "", "decode", "sniff", "simulate", "poll":
		return true
	}
	return false
}

func main() {
	var mode string
	var cfgFn string
	var role string

	flag.StringVar(&mode, "mode", "", "Mode to start in: decode, sniff, simulate or poll. Default runs everything configured")
	flag.StringVar(&cfgFn, "cfg", "configuration.yaml", "Configuration file (default configuration.yaml)")
	flag.StringVar(&role, "role", "auto", "Frame role for decode mode: request, response or auto")

	flag.Parse()

	if !validMode(mode) {
		fmt.Printf("Unknown mode %q. Valid modes: decode, sniff, simulate, poll.\n", mode)
		os.Exit(1)
	}

	// Decode mode is a pure frame workbench: no config, serial or broker.
	if mode == "decode" {
		runDecode(flag.Args(), role)
		return
	}

	fmt.Printf("RTU Monitor. Reading configuration from %s\n", cfgFn)

	findUSBSerialDevices()
	if len(usbSerialDevices) == 0 {
		fmt.Println("No USB serial adapters found. Serial modes will need a configured device.")
	} else {
		fmt.Printf("USB serial adapters: %v\n", usbSerialDevices)
	}

	logwriter, e := syslog.New(syslog.LOG_DEBUG|syslog.LOG_DAEMON, "rtumon")
	if e == nil {
		log.SetOutput(logwriter)
	}

	if err := parseConfiguration(cfgFn); err != nil {
		log.Fatal(err)
	}

	quitChannel := make(chan bool)

	if mode == "" || mode == "poll" {
		for _, client := range appConfig.Clients {
			if err := startPolling(client); err != nil {
				fmt.Println(err)
				log.Fatal(err)
			}
		}
		addStandardDevice(appConfig.Source.DeviceID)
	}

	if mode == "" || mode == "simulate" {
		sim, err := startSimulator()
		if err != nil {
			log.Fatal(err)
		}
		defer sim.Close()
	}

	if mode == "" || mode == "sniff" {
		if appConfig.Sniffer.Devicename == "" {
			if mode == "sniff" {
				log.Fatal("No sniffer device configured")
			}
		} else if err := startSniffer(quitChannel); err != nil {
			log.Fatal(err)
		}
	}

	go startRecording()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigs
		log.Print("Quit signal received, exiting...")
		quitChannel <- true
	}()

	if mode != "" {
		fmt.Printf("Started in %s mode. Will run until CTRL+C used.\n", mode)
	}

	<-quitChannel
}
