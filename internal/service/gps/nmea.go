package gps

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/benbjohnson/clock"
	"github.com/jacobsa/go-serial/serial"

	"aerialcapture/internal/dto"
)

// NMEAStream reads NMEA 0183 sentences line by line and reports GGA fixes.
type NMEAStream struct {
	src    io.ReadCloser
	latest *latestFix
	clock  clock.Clock
	// onParseError receives sentences that failed to parse; nil ignores them.
	onParseError func(line string, err error)
}

// NewNMEAStream reads sentences from src until it returns an error.
func NewNMEAStream(src io.ReadCloser, clk clock.Clock, onParseError func(string, error)) *NMEAStream {
	if clk == nil {
		clk = clock.New()
	}
	s := &NMEAStream{
		src:          src,
		latest:       newLatestFix(clk),
		clock:        clk,
		onParseError: onParseError,
	}
	go s.read()
	return s
}

// ListenNMEAUDP receives NMEA datagrams on address (":10110").
func ListenNMEAUDP(address string, clk clock.Clock, onParseError func(string, error)) (*NMEAStream, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve UDP address %s: %w", address, err)
	}
	conn, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on UDP %s: %w", address, err)
	}
	return NewNMEAStream(conn, clk, onParseError), nil
}

// OpenSerialNMEA reads NMEA from a serial GPS receiver.
func OpenSerialNMEA(path string, baud int, clk clock.Clock, onParseError func(string, error)) (*NMEAStream, error) {
	dev, err := serial.Open(serial.OpenOptions{
		PortName:        path,
		BaudRate:        uint(baud),
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 4,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open serial GPS %s: %w", path, err)
	}
	return NewNMEAStream(dev, clk, onParseError), nil
}

func (s *NMEAStream) read() {
	defer s.latest.finish()
	scanner := bufio.NewScanner(s.src)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		fix, ok, err := ParseNMEA(line, s.clock.Now())
		if err != nil {
			if s.onParseError != nil {
				s.onParseError(line, err)
			}
			continue
		}
		if ok {
			s.latest.offer(fix)
		}
	}
}

// ParseNMEA returns a fix for a GGA sentence with a valid fix quality. Other sentence types
// parse without error and report ok=false.
func ParseNMEA(line string, observedAt time.Time) (fix dto.GPSFix, ok bool, err error) {
	sentence, err := nmea.Parse(line)
	if err != nil {
		return dto.GPSFix{}, false, err
	}
	gga, isGGA := sentence.(nmea.GGA)
	if !isGGA || gga.FixQuality == nmea.Invalid {
		return dto.GPSFix{}, false, nil
	}
	return dto.GPSFix{
		Lat:        gga.Latitude,
		Lon:        gga.Longitude,
		Alt:        gga.Altitude,
		ObservedAt: observedAt,
		Valid:      true,
	}, true, nil
}

// Next implements PositionStream.
func (s *NMEAStream) Next(ctx context.Context, timeout time.Duration) (dto.GPSFix, error) {
	return s.latest.next(ctx, timeout)
}

// Close closes the underlying source, which also ends the reader.
func (s *NMEAStream) Close() error {
	return s.src.Close()
}
