package main

import (
	"bufio"
	"fmt"
	"os"
)

// runDecode decodes hex frames given on the command line, or read one per
// line from stdin when none are given.
func runDecode(frames []string, roleName string) {
	if len(frames) > 0 {
		for _, text := range frames {
			fmt.Println(decodeText(text, roleName))
		}
		return
	}

	fmt.Println("Enter RTU frames as hex, one per line. CTRL+D to finish.")
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fmt.Println(decodeText(line, roleName))
	}
}

// decodeText runs a typed hex frame through the parser and decoder and
// formats the outcome for the console.
func decodeText(text, roleName string) string {
	raw, err := parseHex(text)
	if err != nil {
		return fmt.Sprintf("%s => %v", text, err)
	}

	var df decodedFrame
	switch roleName {
	case "request":
		df, err = decodeFrame(raw, roleRequest)
	case "response":
		df, err = decodeFrame(raw, roleResponse)
	default:
		// No role given: most traffic typed in by hand is a request, so
		// try that first and fall back to a response decode.
		df, err = decodeFrame(raw, roleRequest)
		if err != nil {
			var respErr error
			if df, respErr = decodeFrame(raw, roleResponse); respErr != nil {
				// Neither worked; the request error reads better.
				return fmt.Sprintf("%s => %v", text, err)
			}
			err = nil
		}
	}
	if err != nil {
		return fmt.Sprintf("%s => %v", text, err)
	}
	return fmt.Sprintf("%s => %s", text, df)
}
