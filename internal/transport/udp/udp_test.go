// SPDX-License-Identifier: MIT
package udp

import (
	"errors"
	"net"
	"testing"
	"time"

	"specview/internal/transport"
)

func listen(t *testing.T) *net.UDPConn {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	return conn
}

func receive(t *testing.T, conn *net.UDPConn) Packet {
	t.Helper()
	buf := make([]byte, MaxPacketSize)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, _, err := conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	p, err := ParsePacket(buf[:n])
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func testFrame(ts int64) *transport.Frame {
	return &transport.Frame{
		Type:      "spectrum",
		Timestamp: ts,
		Average: [][]float32{
			{0, 0.25, 0.5},
			{1, 0.75, 0.125},
		},
	}
}

func TestPublisherRoundTrip(t *testing.T) {
	listener := listen(t)
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := NewUDPPublisher(0, sender, 2, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	if err := pub.Send(testFrame(1_700_000_000_000_000_000)); err != nil {
		t.Fatal(err)
	}

	p := receive(t, listener)
	if p.Sequence != 1 || p.Timestamp != 1_700_000_000_000_000_000 || p.Channels != 2 || p.Bins != 3 {
		t.Errorf("header = %+v", p)
	}
	want := testFrame(0).Average
	for ch := range want {
		for bin := range want[ch] {
			if p.Averages[ch][bin] != want[ch][bin] {
				t.Errorf("Averages[%d][%d] = %v, expected %v", ch, bin, p.Averages[ch][bin], want[ch][bin])
			}
		}
	}
}

func TestPublisherThrottles(t *testing.T) {
	listener := listen(t)
	defer listener.Close()

	sender, err := NewUDPSender(listener.LocalAddr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	pub, err := NewUDPPublisher(16*time.Millisecond, sender, 2, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer pub.Close()

	base := time.Now().UnixNano()
	for _, offset := range []time.Duration{0, 5 * time.Millisecond, 10 * time.Millisecond, 20 * time.Millisecond} {
		if err := pub.Send(testFrame(base + int64(offset))); err != nil {
			t.Fatal(err)
		}
	}

	if pub.Sequence() != 2 {
		t.Errorf("Sequence() = %d, expected 2 packets after throttling", pub.Sequence())
	}
	if p := receive(t, listener); p.Sequence != 1 {
		t.Errorf("first packet sequence = %d", p.Sequence)
	}
	if p := receive(t, listener); p.Sequence != 2 || p.Timestamp != base+int64(20*time.Millisecond) {
		t.Errorf("second packet = %+v", p)
	}
}

func TestPublisherRejects(t *testing.T) {
	listener := listen(t)
	defer listener.Close()
	sender, err := NewUDPSender(listener.LocalAddr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer sender.Close()

	if _, err := NewUDPPublisher(0, nil, 1, 1, nil); err == nil {
		t.Error("nil sender accepted")
	}
	if _, err := NewUDPPublisher(0, sender, 2, 16385, nil); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("oversized shape error = %v", err)
	}

	pub, err := NewUDPPublisher(0, sender, 1, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := pub.Send("not a frame"); !errors.Is(err, ErrUnsupportedPayload) {
		t.Errorf("Send(string) error = %v", err)
	}
	if err := pub.Send(testFrame(1)); !errors.Is(err, ErrPacketTooLarge) {
		t.Errorf("Send of a larger frame error = %v", err)
	}
}

func TestSenderClosed(t *testing.T) {
	listener := listen(t)
	defer listener.Close()
	sender, err := NewUDPSender(listener.LocalAddr().String(), nil)
	if err != nil {
		t.Fatal(err)
	}
	sender.Close()
	if err := sender.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
	if err := sender.Send([]byte{1}); !errors.Is(err, ErrSenderClosed) {
		t.Errorf("Send after Close = %v", err)
	}
}

func TestParsePacketShort(t *testing.T) {
	if _, err := ParsePacket(make([]byte, 10)); !errors.Is(err, ErrShortPacket) {
		t.Errorf("short header error = %v", err)
	}
	header := []byte{0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0, 4}
	if _, err := ParsePacket(header); !errors.Is(err, ErrShortPacket) {
		t.Errorf("missing payload error = %v", err)
	}
}

func TestNewUDPSenderBadAddress(t *testing.T) {
	if _, err := NewUDPSender("not-an-address", nil); err == nil {
		t.Error("expected resolve error")
	}
}
