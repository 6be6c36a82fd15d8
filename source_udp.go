package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/net/ipv4"
	"golang.org/x/sys/unix"
)

// UDP bridge packet layout, little-endian:
//
//	byte 0      protocol version (1)
//	byte 1      channel count
//	bytes 2-3   samples per channel (uint16)
//	bytes 4-    float32 samples, channel-major
const (
	udpProtocolVersion = 1
	udpHeaderSize      = 4
	udpMaxPacketSize   = 65536
)

// UDPSource receives sample frames from a hardware bridge over UDP. The
// bridge owns the BLE link to the headband and forwards raw samples; this
// side only parses and pushes them.
type UDPSource struct {
	listenAddr string
	ifaceName  string
	sampleRate int
	push       PushFunc

	conn     *net.UDPConn
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup

	badPacketCount int
}

// NewUDPSource creates a live sample source listening on the given address.
// If the address is multicast, the group is joined on the named interface
// (or the system default when empty).
func NewUDPSource(listenAddr, ifaceName string, sampleRate int, push PushFunc) (*UDPSource, error) {
	return &UDPSource{
		listenAddr: listenAddr,
		ifaceName:  ifaceName,
		sampleRate: sampleRate,
		push:       push,
		stopChan:   make(chan struct{}),
	}, nil
}

// Metadata returns the board descriptor
func (s *UDPSource) Metadata() BoardMetadata {
	return BoardMetadata{
		ChannelNames: museChannelNames,
		SampleRate:   s.sampleRate,
		Synthetic:    false,
	}
}

// Start opens the socket and begins the receive loop
func (s *UDPSource) Start() error {
	addr, err := net.ResolveUDPAddr("udp4", s.listenAddr)
	if err != nil {
		return fmt.Errorf("failed to resolve bridge address: %w", err)
	}

	conn, err := setupBridgeSocket(addr)
	if err != nil {
		return fmt.Errorf("failed to setup bridge socket: %w", err)
	}

	if addr.IP != nil && addr.IP.IsMulticast() {
		var iface *net.Interface
		if s.ifaceName != "" {
			iface, err = net.InterfaceByName(s.ifaceName)
			if err != nil {
				conn.Close()
				return fmt.Errorf("failed to find interface %q: %w", s.ifaceName, err)
			}
		}
		p := ipv4.NewPacketConn(conn)
		if err := p.JoinGroup(iface, addr); err != nil {
			conn.Close()
			return fmt.Errorf("failed to join multicast group: %w", err)
		}
	}

	s.conn = conn
	s.running = true
	s.wg.Add(1)
	go s.receiveLoop()

	log.Printf("Live board source listening on %s (rate=%d Hz)", s.listenAddr, s.sampleRate)
	return nil
}

// Stop shuts down the receive loop and closes the socket. Safe to call
// more than once.
func (s *UDPSource) Stop() {
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	s.wg.Wait()
	if s.conn != nil {
		s.conn.Close()
	}
	log.Println("Live board source stopped")
}

// setupBridgeSocket creates the UDP socket with SO_REUSEPORT and
// SO_REUSEADDR so a restarting bridge or a second reader does not race the
// bind
func setupBridgeSocket(addr *net.UDPAddr) (*net.UDPConn, error) {
	lc := net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEPORT: %w", err)
					return
				}
				if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
					sockErr = fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
					return
				}
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	conn, err := lc.ListenPacket(context.Background(), "udp4", addr.String())
	if err != nil {
		return nil, fmt.Errorf("failed to listen: %w", err)
	}
	return conn.(*net.UDPConn), nil
}

func (s *UDPSource) receiveLoop() {
	defer s.wg.Done()

	buffer := make([]byte, udpMaxPacketSize)

	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		// Short read deadline so stopChan is checked regularly
		s.conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))

		n, _, err := s.conn.ReadFromUDP(buffer)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopChan:
				return
			default:
			}
			log.Printf("ERROR: Failed to read bridge packet: %v", err)
			continue
		}

		block, ok := s.parsePacket(buffer[:n])
		if !ok {
			continue
		}
		s.push(block)
	}
}

// parsePacket decodes one bridge packet into a sample block. Malformed
// packets are logged (rate-limited by count) and dropped.
func (s *UDPSource) parsePacket(packet []byte) (SampleBlock, bool) {
	if len(packet) < udpHeaderSize {
		s.logBadPacket("packet too short (%d bytes)", len(packet))
		return SampleBlock{}, false
	}

	version := packet[0]
	numChannels := int(packet[1])
	numSamples := int(binary.LittleEndian.Uint16(packet[2:4]))

	if version != udpProtocolVersion {
		s.logBadPacket("unknown protocol version %d", version)
		return SampleBlock{}, false
	}
	if numChannels != len(museChannelNames) {
		s.logBadPacket("unexpected channel count %d", numChannels)
		return SampleBlock{}, false
	}
	expected := udpHeaderSize + numChannels*numSamples*4
	if numSamples == 0 || len(packet) != expected {
		s.logBadPacket("bad payload length %d (expected %d)", len(packet), expected)
		return SampleBlock{}, false
	}

	block := SampleBlock{
		Timestamp: time.Now(),
		Samples:   make([][]float64, numChannels),
	}
	offset := udpHeaderSize
	for ch := 0; ch < numChannels; ch++ {
		data := make([]float64, numSamples)
		for i := 0; i < numSamples; i++ {
			bits := binary.LittleEndian.Uint32(packet[offset : offset+4])
			data[i] = float64(math.Float32frombits(bits))
			offset += 4
		}
		block.Samples[ch] = data
	}
	return block, true
}

// logBadPacket logs the first few malformed packets, then every 1000th, so
// a misconfigured bridge does not flood the log
func (s *UDPSource) logBadPacket(format string, args ...interface{}) {
	s.badPacketCount++
	if s.badPacketCount <= 5 || s.badPacketCount%1000 == 0 {
		log.Printf("WARNING: Dropping bridge packet: "+format+" (%d total)",
			append(args, s.badPacketCount)...)
	}
}
