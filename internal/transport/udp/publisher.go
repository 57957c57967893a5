// SPDX-License-Identifier: MIT
package udp

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"specview/internal/log"
	"specview/internal/transport"
)

/*
UDP Packet Structure (BigEndian)

+-----------------------------------------------------------------------------+
| Field             | Data Type      | Size (Bytes) | Description             |
|-------------------|----------------|--------------|-------------------------|
| Sequence Number   | uint32         | 4            | Monotonically increasing|
| Timestamp         | int64          | 8            | Nanoseconds since epoch |
| Channel Count     | uint16         | 2            | Number of channels (C)  |
| Bin Count         | uint16         | 2            | Bins per channel (N)    |
| Magnitudes        | []float32      | C * N * 4    | Averaged magnitudes,    |
|                   |                |              | channel after channel   |
+-----------------------------------------------------------------------------+
*/

// HeaderSize is the fixed packet header length.
const HeaderSize = 4 + 8 + 2 + 2

// MaxPacketSize is the largest UDP payload over IPv4.
const MaxPacketSize = 65507

var (
	// ErrPacketTooLarge is returned when a spectrum does not fit one datagram.
	ErrPacketTooLarge = errors.New("udp: spectrum does not fit in one datagram")
	// ErrShortPacket is returned by ParsePacket for truncated input.
	ErrShortPacket = errors.New("udp: short packet")
	// ErrUnsupportedPayload is returned by Send for anything but *transport.Frame.
	ErrUnsupportedPayload = errors.New("udp: unsupported payload")
)

// Packet is a decoded spectrum datagram.
type Packet struct {
	Sequence  uint32
	Timestamp int64
	Channels  int
	Bins      int
	Averages  [][]float32
}

// PacketSize returns the datagram length for a spectrum shape.
func PacketSize(channels, bins int) int {
	return HeaderSize + channels*bins*4
}

// UDPPublisher packs render frames into the binary format above and sends
// them with a UDPSender. It implements transport.Transport and throttles to at
// most one packet per interval.
type UDPPublisher struct {
	sender   *UDPSender
	interval time.Duration
	logger   *log.Logger

	mu          sync.Mutex // Serializes Send; the packet buffer is reused.
	sequenceNum uint32
	lastSent    time.Time
	packet      []byte
}

// NewUDPPublisher creates a publisher for spectra of the given shape. An
// interval <= 0 sends every frame.
func NewUDPPublisher(interval time.Duration, sender *UDPSender, channels, bins int, logger *log.Logger) (*UDPPublisher, error) {
	if sender == nil {
		return nil, fmt.Errorf("UDPPublisher: UDP sender cannot be nil")
	}
	if channels < 1 || bins < 1 || channels > math.MaxUint16 || bins > math.MaxUint16 {
		return nil, fmt.Errorf("UDPPublisher: invalid shape %dx%d", channels, bins)
	}
	size := PacketSize(channels, bins)
	if size > MaxPacketSize {
		return nil, fmt.Errorf("%w: %d channels x %d bins is %d bytes", ErrPacketTooLarge, channels, bins, size)
	}
	if logger == nil {
		logger = log.Nop()
	}

	logger.Infof("Initializing UDP publisher (interval %s, %d channels, %d bins, %d bytes)", interval, channels, bins, size)

	return &UDPPublisher{
		sender:   sender,
		interval: interval,
		logger:   logger,
		packet:   make([]byte, 0, size),
	}, nil
}

// Send packs and transmits a *transport.Frame. Frames arriving sooner than
// the interval after the previous packet are skipped.
func (p *UDPPublisher) Send(data any) error {
	frame, ok := data.(*transport.Frame)
	if !ok {
		return fmt.Errorf("%w: %T", ErrUnsupportedPayload, data)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Unix(0, frame.Timestamp)
	if p.interval > 0 && !p.lastSent.IsZero() && now.Sub(p.lastSent) < p.interval {
		return nil
	}

	packet, err := p.appendPacket(p.packet[:0], frame)
	if err != nil {
		return err
	}
	p.packet = packet

	if err := p.sender.Send(packet); err != nil {
		return err
	}
	p.lastSent = now
	p.logger.Debugf("Sent packet %d (%d bytes)", p.sequenceNum, len(packet))
	return nil
}

// appendPacket appends the encoding of frame to dst.
func (p *UDPPublisher) appendPacket(dst []byte, frame *transport.Frame) ([]byte, error) {
	channels := len(frame.Average)
	bins := 0
	if channels > 0 {
		bins = len(frame.Average[0])
	}
	if PacketSize(channels, bins) > cap(p.packet) {
		return nil, fmt.Errorf("%w: got %dx%d", ErrPacketTooLarge, channels, bins)
	}

	p.sequenceNum++
	dst = binary.BigEndian.AppendUint32(dst, p.sequenceNum)
	dst = binary.BigEndian.AppendUint64(dst, uint64(frame.Timestamp))
	dst = binary.BigEndian.AppendUint16(dst, uint16(channels))
	dst = binary.BigEndian.AppendUint16(dst, uint16(bins))
	for _, channel := range frame.Average {
		for bin := range bins {
			var v float32
			if bin < len(channel) {
				v = channel[bin]
			}
			dst = binary.BigEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst, nil
}

// Sequence returns the sequence number of the last packet built.
func (p *UDPPublisher) Sequence() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sequenceNum
}

// Close closes the underlying sender.
func (p *UDPPublisher) Close() error {
	return p.sender.Close()
}

var _ transport.Transport = (*UDPPublisher)(nil)

// ParsePacket decodes a datagram produced by UDPPublisher.
func ParsePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}

	p := Packet{
		Sequence:  binary.BigEndian.Uint32(b[0:4]),
		Timestamp: int64(binary.BigEndian.Uint64(b[4:12])),
		Channels:  int(binary.BigEndian.Uint16(b[12:14])),
		Bins:      int(binary.BigEndian.Uint16(b[14:16])),
	}
	if len(b) < PacketSize(p.Channels, p.Bins) {
		return Packet{}, fmt.Errorf("%w: %d bytes for %dx%d", ErrShortPacket, len(b), p.Channels, p.Bins)
	}

	p.Averages = make([][]float32, p.Channels)
	offset := HeaderSize
	for ch := range p.Averages {
		p.Averages[ch] = make([]float32, p.Bins)
		for bin := range p.Averages[ch] {
			p.Averages[ch][bin] = math.Float32frombits(binary.BigEndian.Uint32(b[offset:]))
			offset += 4
		}
	}
	return p, nil
}
