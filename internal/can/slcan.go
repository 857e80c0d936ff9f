package can

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
)

// SLCAN is a Transport for USB CAN adapters speaking the Lawicel SLCAN
// ASCII protocol (CANable, USBtin and friends present as a serial port).
//
// The adapter exposes a single physical channel, so the configured bus
// index is stamped onto every received frame and outgoing frames are
// written to the channel regardless of their Bus field.
type SLCAN struct {
	device    string
	baudRate  int
	speedKbps int
	busIndex  int

	mu     sync.Mutex
	port   serial.Port
	opened bool
	// carry holds a partial record between Poll calls
	carry []byte
	// queue holds frames parsed ahead of the caller
	queue []Frame
}

// SLCANConfig holds connection parameters for the adapter.
type SLCANConfig struct {
	Device    string `yaml:"device" json:"device"`
	BaudRate  int    `yaml:"baud_rate" json:"baudRate"`
	SpeedKbps int    `yaml:"speed_kbps" json:"speedKbps"`
	BusIndex  int    `yaml:"bus_index" json:"busIndex"`
}

const (
	slcanReadTimeout = 20 * time.Millisecond
	slcanDrainWindow = 500 * time.Millisecond
	slcanCR          = '\r'
	slcanBell        = '\a' // adapter NAK
)

// NewSLCAN creates an SLCAN transport. Open must be called before use.
func NewSLCAN(cfg SLCANConfig) *SLCAN {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = 115200
	}
	if cfg.SpeedKbps == 0 {
		cfg.SpeedKbps = 500
	}
	return &SLCAN{
		device:    cfg.Device,
		baudRate:  cfg.BaudRate,
		speedKbps: cfg.SpeedKbps,
		busIndex:  cfg.BusIndex,
	}
}

func (s *SLCAN) Name() string { return "SLCAN" }

// Open opens the serial port, drains boot garbage, and configures the
// channel: close (in case a previous run left it open), set bitrate, open.
func (s *SLCAN) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.opened {
		return nil
	}

	code, err := slcanSpeedCode(s.speedKbps)
	if err != nil {
		return err
	}

	mode := &serial.Mode{
		BaudRate: s.baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.device, mode)
	if err != nil {
		return fmt.Errorf("slcan: open %s: %w", s.device, err)
	}
	if err := port.SetReadTimeout(slcanReadTimeout); err != nil {
		port.Close()
		return fmt.Errorf("slcan: set read timeout: %w", err)
	}
	s.port = port

	log.Printf("[slcan] opened %s at %d baud", s.device, s.baudRate)

	// Adapters emit boot banners and leftover frames after plug-in.
	s.drain("boot")

	for _, cmd := range []string{"C", "S" + code, "O"} {
		if err := s.command(cmd); err != nil {
			s.port.Close()
			s.port = nil
			return fmt.Errorf("slcan: command %q: %w", cmd, err)
		}
	}

	s.opened = true
	s.carry = nil
	s.queue = nil
	log.Printf("[slcan] channel open on %s (%d kbps)", s.device, s.speedKbps)
	return nil
}

// Close shuts the channel and releases the port.
func (s *SLCAN) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.opened = false
	if s.port == nil {
		return nil
	}
	// Best effort: quiesce the channel before dropping the handle.
	s.port.Write([]byte{'C', slcanCR})
	err := s.port.Close()
	s.port = nil
	return err
}

func (s *SLCAN) Alive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opened && s.port != nil
}

// Send writes one frame as an SLCAN record.
func (s *SLCAN) Send(f Frame) error {
	if err := f.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.port == nil {
		return fmt.Errorf("slcan: send: %w", ErrDeviceGone)
	}

	rec := marshalSLCAN(f)
	n, err := s.port.Write(rec)
	if err != nil {
		return fmt.Errorf("slcan: write failed: %w (%w)", err, ErrDeviceGone)
	}
	if n < len(rec) {
		return fmt.Errorf("slcan: short write %d/%d: %w", n, len(rec), ErrDeviceGone)
	}
	return nil
}

// Poll returns the next received frame, if one is pending. It reads
// whatever the adapter has buffered, parses complete records, and hands
// frames out one at a time. A read error reports the device gone.
func (s *SLCAN) Poll() (Frame, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.opened || s.port == nil {
		return Frame{}, false, fmt.Errorf("slcan: poll: %w", ErrDeviceGone)
	}

	if len(s.queue) == 0 {
		buf := make([]byte, 256)
		n, err := s.port.Read(buf)
		if err != nil {
			return Frame{}, false, fmt.Errorf("slcan: read failed: %w (%w)", err, ErrDeviceGone)
		}
		if n > 0 {
			s.carry = append(s.carry, buf[:n]...)
			s.parseCarry()
		}
	}

	if len(s.queue) == 0 {
		return Frame{}, false, nil
	}
	f := s.queue[0]
	s.queue = s.queue[1:]
	return f, true, nil
}

// parseCarry splits s.carry on CR and decodes complete records.
func (s *SLCAN) parseCarry() {
	for {
		i := bytes.IndexByte(s.carry, slcanCR)
		if i < 0 {
			// Drop lone bell NAKs so they don't wedge the buffer.
			for len(s.carry) > 0 && s.carry[0] == slcanBell {
				s.carry = s.carry[1:]
			}
			return
		}
		line := strings.TrimFunc(string(s.carry[:i]), func(r rune) bool {
			return r == slcanBell || r == '\n' || r == '\r'
		})
		s.carry = s.carry[i+1:]
		if line == "" {
			continue // bare CR is a command ACK
		}
		f, err := parseSLCAN(line)
		if err != nil {
			log.Printf("[slcan] discarding record %q: %v", line, err)
			continue
		}
		f.Bus = s.busIndex
		s.queue = append(s.queue, f)
	}
}

// command writes one SLCAN command and gives the adapter a moment to
// process it. ACK bytes are swept up by the next drain or Poll.
func (s *SLCAN) command(cmd string) error {
	if _, err := s.port.Write(append([]byte(cmd), slcanCR)); err != nil {
		return err
	}
	time.Sleep(20 * time.Millisecond)
	return nil
}

// drain reads and discards pending bytes until the port goes quiet.
func (s *SLCAN) drain(label string) {
	s.port.ResetInputBuffer()
	deadline := time.Now().Add(slcanDrainWindow)
	buf := make([]byte, 256)
	total := 0
	for time.Now().Before(deadline) {
		n, _ := s.port.Read(buf)
		if n == 0 {
			break
		}
		total += n
	}
	if total > 0 {
		log.Printf("[slcan] drain(%s) discarded %d bytes", label, total)
	}
}

// slcanSpeedCode maps a bitrate in kbps to the adapter's Sn code.
func slcanSpeedCode(kbps int) (string, error) {
	codes := map[int]string{
		10: "0", 20: "1", 50: "2", 100: "3",
		125: "4", 250: "5", 500: "6", 800: "7", 1000: "8",
	}
	c, ok := codes[kbps]
	if !ok {
		return "", fmt.Errorf("slcan: unsupported bitrate %d kbps", kbps)
	}
	return c, nil
}

// marshalSLCAN encodes a frame as an ASCII record:
//
//	standard: tIIIL<data hex>\r
//	extended: TIIIIIIIIL<data hex>\r
func marshalSLCAN(f Frame) []byte {
	var b strings.Builder
	if f.Extended() {
		fmt.Fprintf(&b, "T%08X", f.ID)
	} else {
		fmt.Fprintf(&b, "t%03X", f.ID)
	}
	fmt.Fprintf(&b, "%d", f.Len)
	for _, d := range f.Data[:f.Len] {
		fmt.Fprintf(&b, "%02X", d)
	}
	b.WriteByte(slcanCR)
	return []byte(b.String())
}

// parseSLCAN decodes one CR-stripped record into a frame. Only data
// frames (t/T) are returned; remote and status records are rejected.
func parseSLCAN(line string) (Frame, error) {
	var f Frame
	if line == "" {
		return f, fmt.Errorf("empty record")
	}

	var idLen int
	switch line[0] {
	case 't':
		idLen = 3
	case 'T':
		idLen = 8
	case 'r', 'R':
		return f, fmt.Errorf("remote frame not supported")
	default:
		return f, fmt.Errorf("unknown record type %q", line[0])
	}

	if len(line) < 1+idLen+1 {
		return f, fmt.Errorf("record too short")
	}

	id, err := strconv.ParseUint(line[1:1+idLen], 16, 32)
	if err != nil {
		return f, fmt.Errorf("bad identifier: %w", err)
	}
	f.ID = uint32(id)

	dlc := int(line[1+idLen] - '0')
	if dlc > 8 {
		return f, fmt.Errorf("bad dlc %q", line[1+idLen])
	}
	f.Len = uint8(dlc)

	hex := line[1+idLen+1:]
	if len(hex) < dlc*2 {
		return f, fmt.Errorf("truncated data: have %d hex chars, want %d", len(hex), dlc*2)
	}
	for i := 0; i < dlc; i++ {
		v, err := strconv.ParseUint(hex[i*2:i*2+2], 16, 8)
		if err != nil {
			return f, fmt.Errorf("bad data byte %d: %w", i, err)
		}
		f.Data[i] = uint8(v)
	}
	return f, f.Validate()
}
