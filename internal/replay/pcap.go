package replay

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"go.uber.org/zap"

	"github.com/muurk/groundlink/internal/link"
	"github.com/muurk/groundlink/internal/logging"
)

// ErrNotPcap is returned when a file is neither pcap nor pcapng.
var ErrNotPcap = errors.New("not a pcap or pcapng file")

type packetReader interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	LinkType() layers.LinkType
}

// Pcap replays the UDP payloads of a pcap or pcapng file into sink. Each
// flow (source and destination address and port) becomes its own link named
// "pcap:<src>-><dst>" so sequence tracking matches a live UDP link.
func Pcap(ctx context.Context, path string, sink link.Sink, opts Options) (Stats, error) {
	var st Stats

	f, err := os.Open(path)
	if err != nil {
		return st, fmt.Errorf("failed to open pcap: %w", err)
	}
	defer f.Close()

	r, err := openPacketReader(f)
	if err != nil {
		return st, err
	}

	flows := make(map[string]*source)
	defer func() {
		for _, src := range flows {
			sink.LinkClosed(src)
		}
	}()

	logging.Info("Replaying pcap",
		zap.String("path", path),
		zap.String("link_type", r.LinkType().String()),
		zap.Uint16("udp_port", opts.UDPPort),
	)

	var last time.Time
	for {
		if err := ctx.Err(); err != nil {
			return st, err
		}

		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return st, fmt.Errorf("failed to read packet: %w", err)
		}

		if opts.Realtime && !last.IsZero() {
			if err := sleepUntil(ctx, ci.Timestamp.Sub(last)); err != nil {
				return st, err
			}
		}
		last = ci.Timestamp

		name, payload, ok := udpPayload(data, r.LinkType(), opts.UDPPort)
		if !ok {
			st.Skipped++
			continue
		}

		src, exists := flows[name]
		if !exists {
			src = &source{name: name}
			flows[name] = src
			logging.Debug("New pcap flow", zap.String("flow", name))
		}

		sink.OnBytesReceived(src, payload)
		st.Chunks++
		st.Bytes += len(payload)
	}

	st.Flows = len(flows)
	logging.Info("Replay finished",
		zap.String("path", path),
		zap.Int("datagrams", st.Chunks),
		zap.Int("flows", st.Flows),
		zap.Int("skipped", st.Skipped),
	)
	return st, nil
}

func openPacketReader(f *os.File) (packetReader, error) {
	if r, err := pcapgo.NewReader(f); err == nil {
		return r, nil
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind pcap: %w", err)
	}
	r, err := pcapgo.NewNgReader(f, pcapgo.DefaultNgReaderOptions)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotPcap, err)
	}
	return r, nil
}

// udpPayload extracts the flow name and payload of a UDP datagram.
func udpPayload(data []byte, lt layers.LinkType, port uint16) (string, []byte, bool) {
	packet := gopacket.NewPacket(data, lt, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

	udpLayer := packet.Layer(layers.LayerTypeUDP)
	if udpLayer == nil {
		return "", nil, false
	}
	udp, _ := udpLayer.(*layers.UDP)
	if port != 0 && uint16(udp.SrcPort) != port && uint16(udp.DstPort) != port {
		return "", nil, false
	}
	if len(udp.Payload) == 0 {
		return "", nil, false
	}

	netLayer := packet.NetworkLayer()
	if netLayer == nil {
		return "", nil, false
	}
	nf := netLayer.NetworkFlow()
	name := fmt.Sprintf("pcap:%s:%d->%s:%d",
		nf.Src(), uint16(udp.SrcPort), nf.Dst(), uint16(udp.DstPort))
	return name, udp.Payload, true
}
