package main

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

const usbSysfsPath = "/sys/bus/usb/devices"

var (
	usbSerialDevices []string
	usbSerialRe      = regexp.MustCompile(`(?i)usb.*serial|serial.*usb|uart`)
)

// findUSBSerialDevices walks sysfs looking for USB serial adapters (the
// FTDI/CP210x dongles used on RS485 training rigs) and records their tty
// names so startup can report what is plugged in.
func findUSBSerialDevices() {
	usbSerialDevices = nil
	roots, err := filepath.Glob(filepath.Join(usbSysfsPath, "usb*"))
	if err != nil {
		return
	}

	seen := make(map[string]bool)
	for _, root := range roots {
		prodFiles, err := filepath.Glob(filepath.Join(root, "*", "product"))
		if err != nil {
			continue
		}
		for _, prodFn := range prodFiles {
			if !usbSerialRe.MatchString(readSysfsFile(prodFn)) {
				continue
			}
			ttys, err := filepath.Glob(filepath.Join(filepath.Dir(prodFn), "*:*", "tty*"))
			if err != nil || len(ttys) == 0 {
				continue
			}
			name := filepath.Base(ttys[0])
			if !seen[name] {
				seen[name] = true
				usbSerialDevices = append(usbSerialDevices, name)
			}
		}
	}
}

func readSysfsFile(fn string) string {
	fh, err := os.Open(fn)
	if err != nil {
		return ""
	}
	defer fh.Close()
	rBytes, err := ioutil.ReadAll(fh)
	if err != nil {
		return ""
	}
	return strings.TrimSuffix(string(rBytes), "\n")
}
