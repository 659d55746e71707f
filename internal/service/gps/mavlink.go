package gps

import (
	"context"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bluenviron/gomavlib/v2"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/common"

	"aerialcapture/internal/dto"
)

// groundStationID is the MAVLink system id used by ground control software.
const groundStationID = 255

// MAVLinkStream reads GLOBAL_POSITION_INT messages from a UDP endpoint, e.g. a MAVProxy output.
type MAVLinkStream struct {
	node   *gomavlib.Node
	latest *latestFix
}

// NewMAVLinkStream listens for MAVLink on address (":14551").
func NewMAVLinkStream(address string, clk clock.Clock) (*MAVLinkStream, error) {
	if clk == nil {
		clk = clock.New()
	}
	node, err := gomavlib.NewNode(gomavlib.NodeConf{
		Endpoints: []gomavlib.EndpointConf{
			gomavlib.EndpointUDPServer{Address: address},
		},
		Dialect:     common.Dialect,
		OutVersion:  gomavlib.V2,
		OutSystemID: groundStationID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open MAVLink endpoint %s: %w", address, err)
	}

	s := &MAVLinkStream{node: node, latest: newLatestFix(clk)}
	go s.read(clk)
	return s, nil
}

func (s *MAVLinkStream) read(clk clock.Clock) {
	defer s.latest.finish()
	for evt := range s.node.Events() {
		frm, ok := evt.(*gomavlib.EventFrame)
		if !ok {
			continue
		}
		if msg, ok := frm.Message().(*common.MessageGlobalPositionInt); ok {
			s.latest.offer(FixFromGlobalPosition(msg, clk.Now()))
		}
	}
}

// FixFromGlobalPosition converts the integer message fields: degrees * 1e7 and millimeters.
// Altitude is relative to home, which is what an aerial capture wants.
func FixFromGlobalPosition(msg *common.MessageGlobalPositionInt, observedAt time.Time) dto.GPSFix {
	return dto.GPSFix{
		Lat:        float64(msg.Lat) / 1e7,
		Lon:        float64(msg.Lon) / 1e7,
		Alt:        float64(msg.RelativeAlt) / 1000.0,
		ObservedAt: observedAt,
		Valid:      true,
	}
}

// Next implements PositionStream.
func (s *MAVLinkStream) Next(ctx context.Context, timeout time.Duration) (dto.GPSFix, error) {
	return s.latest.next(ctx, timeout)
}

// Close shuts the MAVLink node down.
func (s *MAVLinkStream) Close() error {
	s.node.Close()
	return nil
}
