package main

/* The sniffer taps a half-duplex RS485 line and decodes whatever it sees.
 * RTU frames carry no length field, so the expected length is derived from
 * the function code; requests and responses can disagree, so both candidate
 * lengths are tried and settled by CRC. When nothing validates within the
 * RTU maximum we drop a byte and try again from the next offset.
 */

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/goburrow/serial"
)

type sniffedFrame struct {
	raw     []byte
	decoded decodedFrame
}

var sniffedChan = make(chan sniffedFrame, 16)

type frameStats struct {
	mu        sync.Mutex
	requests  int
	responses int
	rejects   map[string]int
	resyncs   int
}

var liveStats = frameStats{rejects: make(map[string]int)}

func (st *frameStats) countFrame(role frameRole) {
	st.mu.Lock()
	if role == roleRequest {
		st.requests++
	} else {
		st.responses++
	}
	st.mu.Unlock()
}

func (st *frameStats) countReject(reason string) {
	st.mu.Lock()
	st.rejects[reason]++
	st.mu.Unlock()
}

func (st *frameStats) countResync() {
	st.mu.Lock()
	st.resyncs++
	st.mu.Unlock()
}

func (st *frameStats) snapshot() map[string]int {
	st.mu.Lock()
	defer st.mu.Unlock()
	snap := map[string]int{
		"requests":  st.requests,
		"responses": st.responses,
		"resyncs":   st.resyncs,
	}
	for reason, n := range st.rejects {
		snap["reject_"+reason] = n
	}
	return snap
}

type frameCandidate struct {
	length int
	role   frameRole
}

// frameCandidates returns the possible frame lengths for buf assuming it
// starts at a frame boundary. Read functions are ambiguous: requests are a
// fixed 8 bytes while responses are 5+byteCount, so both are offered and
// the CRC decides. Write-single frames are identical in both directions.
func frameCandidates(buf []byte) []frameCandidate {
	if len(buf) < 2 {
		return nil
	}
	fn := buf[1]
	switch {
	case fn >= fcReadCoils && fn <= fcReadInputRegisters:
		cands := []frameCandidate{{8, roleRequest}}
		if len(buf) >= 3 {
			if respLen := 5 + int(buf[2]); respLen != 8 {
				cands = append(cands, frameCandidate{respLen, roleResponse})
			}
		}
		return cands
	case fn == fcWriteSingleCoil || fn == fcWriteSingleRegister:
		return []frameCandidate{{8, roleRequest}}
	case fn == fcWriteMultipleCoils || fn == fcWriteMultipleRegisters:
		if len(buf) < 7 {
			return nil
		}
		return []frameCandidate{
			{9 + int(buf[6]), roleRequest},
			{8, roleResponse},
		}
	case fn&0x80 != 0:
		return []frameCandidate{{5, roleResponse}}
	default:
		return nil
	}
}

// splitFrame finds the first CRC-valid candidate frame at the start of buf.
// needMore is true when no candidate fits yet but a longer buffer might.
func splitFrame(buf []byte) (length int, role frameRole, ok, needMore bool) {
	cands := frameCandidates(buf)
	if cands == nil {
		return 0, roleRequest, false, len(buf) < 7
	}
	for _, c := range cands {
		if c.length > len(buf) {
			needMore = needMore || c.length <= rtuMaxSize
			continue
		}
		if validCRC(buf[:c.length]) {
			return c.length, c.role, true, false
		}
	}
	return 0, roleRequest, false, needMore
}

func startSniffer(quitChannel chan bool) error {
	cfg := serial.Config{
		Address:  appConfig.Sniffer.Devicename,
		BaudRate: appConfig.Sniffer.Baudrate,
		DataBits: 8,
		StopBits: 1,
		Parity:   appConfig.Sniffer.Parity,
		Timeout:  1 * time.Second,
	}

	port, err := serial.Open(&cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v", cfg.Address, err)
	}

	go sniffSerial(port, quitChannel)
	log.Printf("Sniffer: Started listening on %s", appConfig.Sniffer.Devicename)
	return nil
}

func sniffSerial(port serial.Port, quitChannel chan bool) {
	var fb bytes.Buffer
	tmpBuf := make([]byte, 16)

	for {
		b, err := port.Read(tmpBuf)
		if err != nil {
			if err == serial.ErrTimeout {
				continue
			}
			log.Printf("Sniffer: %v", err)
			if err == io.EOF {
				log.Printf("Exiting sniff loop.")
				quitChannel <- true
				break
			}
			continue
		}
		if b == 0 {
			continue
		}
		fb.Write(tmpBuf[:b])
		drainFrames(&fb, &liveStats)
	}
}

// drainFrames pulls as many complete frames as possible out of fb,
// decoding and reporting each.
func drainFrames(fb *bytes.Buffer, stats *frameStats) {
	for fb.Len() >= rtuMinSize {
		length, role, ok, needMore := splitFrame(fb.Bytes())
		if !ok {
			if needMore && fb.Len() <= rtuMaxSize {
				return
			}
			// Nothing validates: assume we joined mid-frame and slip
			// forward one byte.
			fb.Next(1)
			stats.countResync()
			continue
		}
		raw := make([]byte, length)
		copy(raw, fb.Next(length))
		reportFrame(raw, role, stats)
	}
}

func reportFrame(raw []byte, role frameRole, stats *frameStats) {
	df, err := decodeFrame(raw, role)
	if err != nil && role == roleRequest {
		// Write-single frames look the same both ways; a malformed
		// "request" may really be a response.
		df, err = decodeFrame(raw, roleResponse)
	}
	if err != nil {
		log.Printf("Sniffer: rejected % X: %v", raw, err)
		stats.countReject(rejectReason(err))
		return
	}
	stats.countFrame(df.role)
	log.Printf("Sniffer: %s", df)
	select {
	case sniffedChan <- sniffedFrame{raw: raw, decoded: df}:
	default:
		// Recorder not keeping up; sniffing must not block.
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, errChecksumMismatch):
		return "checksum"
	case errors.Is(err, errUnsupportedFunction):
		return "function"
	case errors.Is(err, errMalformedPayload):
		return "payload"
	case errors.Is(err, errFrameTooShort):
		return "short"
	default:
		return "other"
	}
}
