package main

import (
	"encoding/binary"
	"math"
	"net"
	"sync"
	"testing"
	"time"
)

func TestSyntheticSourceDeliversBlocks(t *testing.T) {
	var mu sync.Mutex
	var blocks []SampleBlock
	push := func(b SampleBlock) {
		mu.Lock()
		blocks = append(blocks, b)
		mu.Unlock()
	}

	src := NewSyntheticSource(256, 42, push)
	meta := src.Metadata()
	if !meta.Synthetic {
		t.Error("synthetic source must report Synthetic")
	}
	if meta.SampleRate != 256 {
		t.Errorf("sample rate = %d", meta.SampleRate)
	}
	if len(meta.ChannelNames) != 4 {
		t.Errorf("channel count = %d", len(meta.ChannelNames))
	}

	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	time.Sleep(150 * time.Millisecond)
	src.Stop()
	src.Stop() // idempotent

	mu.Lock()
	defer mu.Unlock()
	if len(blocks) < 3 {
		t.Fatalf("received %d blocks in 150 ms, want several", len(blocks))
	}
	for _, b := range blocks {
		if len(b.Samples) != 4 {
			t.Fatalf("block has %d channels", len(b.Samples))
		}
		n := len(b.Samples[0])
		for ch, data := range b.Samples {
			if len(data) != n {
				t.Fatalf("channel %d has %d samples, channel 0 has %d", ch, len(data), n)
			}
		}
	}
}

func TestSyntheticSourceDeterministicSeed(t *testing.T) {
	collect := func() []float64 {
		var mu sync.Mutex
		var first []float64
		push := func(b SampleBlock) {
			mu.Lock()
			if first == nil {
				first = append([]float64(nil), b.Samples[0]...)
			}
			mu.Unlock()
		}
		src := NewSyntheticSource(256, 7, push)
		src.Start()
		time.Sleep(60 * time.Millisecond)
		src.Stop()
		mu.Lock()
		defer mu.Unlock()
		return first
	}

	a := collect()
	b := collect()
	if len(a) == 0 || len(b) == 0 {
		t.Fatal("no blocks collected")
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("sample %d differs across runs with the same seed: %v vs %v", i, a[i], b[i])
		}
	}
}

func buildBridgePacket(numChannels, numSamples int, fill func(ch, i int) float32) []byte {
	packet := make([]byte, udpHeaderSize+numChannels*numSamples*4)
	packet[0] = udpProtocolVersion
	packet[1] = byte(numChannels)
	binary.LittleEndian.PutUint16(packet[2:4], uint16(numSamples))
	offset := udpHeaderSize
	for ch := 0; ch < numChannels; ch++ {
		for i := 0; i < numSamples; i++ {
			binary.LittleEndian.PutUint32(packet[offset:offset+4], math.Float32bits(fill(ch, i)))
			offset += 4
		}
	}
	return packet
}

func TestUDPSourceParsePacket(t *testing.T) {
	src, err := NewUDPSource(":0", "", 256, func(SampleBlock) {})
	if err != nil {
		t.Fatal(err)
	}

	packet := buildBridgePacket(4, 3, func(ch, i int) float32 {
		return float32(ch*10 + i)
	})
	block, ok := src.parsePacket(packet)
	if !ok {
		t.Fatal("well-formed packet rejected")
	}
	if len(block.Samples) != 4 {
		t.Fatalf("got %d channels", len(block.Samples))
	}
	if block.Samples[2][1] != 21 {
		t.Errorf("sample[2][1] = %v, want 21", block.Samples[2][1])
	}
}

func TestUDPSourceRejectsMalformedPackets(t *testing.T) {
	src, err := NewUDPSource(":0", "", 256, func(SampleBlock) {})
	if err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name   string
		packet []byte
	}{
		{"too short", []byte{1, 4}},
		{"wrong version", func() []byte {
			p := buildBridgePacket(4, 2, func(_, _ int) float32 { return 0 })
			p[0] = 99
			return p
		}()},
		{"wrong channel count", buildBridgePacket(2, 2, func(_, _ int) float32 { return 0 })},
		{"truncated payload", buildBridgePacket(4, 2, func(_, _ int) float32 { return 0 })[:10]},
		{"zero samples", buildBridgePacket(4, 0, func(_, _ int) float32 { return 0 })},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, ok := src.parsePacket(tc.packet); ok {
				t.Error("malformed packet accepted")
			}
		})
	}
}

func TestUDPSourceReceives(t *testing.T) {
	var mu sync.Mutex
	var got []SampleBlock
	push := func(b SampleBlock) {
		mu.Lock()
		got = append(got, b)
		mu.Unlock()
	}

	src, err := NewUDPSource("127.0.0.1:0", "", 256, push)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Start(); err != nil {
		t.Fatal(err)
	}
	defer src.Stop()

	conn, err := net.Dial("udp", src.conn.LocalAddr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	packet := buildBridgePacket(4, 8, func(ch, i int) float32 { return float32(i) })
	if _, err := conn.Write(packet); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(got)
		mu.Unlock()
		if n > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no block received within 2 s")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(got[0].Samples[0]) != 8 {
		t.Errorf("block has %d samples, want 8", len(got[0].Samples[0]))
	}
}
