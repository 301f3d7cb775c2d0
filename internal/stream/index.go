package stream

import (
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/tcpassembly"

	"netshield/internal/flow"
	m "netshield/internal/models"
)

const maxStreamBuffer = 256 * 1024 // per direction

// Stream is one reassembled TCP connection.
type Stream struct {
	Index      int
	Client     string // ip:port of the side that sent the first segment
	Server     string
	Packets    int
	ClientData []byte
	ServerData []byte
	HTTP       *HTTPTransaction
}

// Index numbers TCP streams in order of first appearance and reassembles
// their payload. It is not safe for concurrent use.
type Index struct {
	assembler *tcpassembly.Assembler
	byPair    map[flow.Pair]*Stream
	streams   []*Stream
	finished  bool
}

func NewIndex() *Index {
	idx := &Index{byPair: make(map[flow.Pair]*Stream)}
	idx.assembler = tcpassembly.NewAssembler(tcpassembly.NewStreamPool(&halfFactory{idx: idx}))
	return idx
}

func endpoint(ip net.IP, port layers.TCPPort) string {
	return net.JoinHostPort(ip.String(), strconv.Itoa(int(port)))
}

func addresses(pkt gopacket.Packet) (src, dst net.IP, ok bool) {
	switch ip := pkt.NetworkLayer().(type) {
	case *layers.IPv4:
		return ip.SrcIP, ip.DstIP, true
	case *layers.IPv6:
		return ip.SrcIP, ip.DstIP, true
	}
	return nil, nil, false
}

// Add feeds one packet. It reports the stream index for TCP packets.
func (x *Index) Add(pkt gopacket.Packet) (int, bool) {
	tcpLayer := pkt.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil || x.finished {
		return 0, false
	}
	tcp := tcpLayer.(*layers.TCP)
	src, dst, ok := addresses(pkt)
	if !ok {
		return 0, false
	}

	from, to := endpoint(src, tcp.SrcPort), endpoint(dst, tcp.DstPort)
	pair := flow.MakePair(from, to)
	s, ok := x.byPair[pair]
	if !ok {
		s = &Stream{Index: len(x.streams), Client: from, Server: to}
		x.byPair[pair] = s
		x.streams = append(x.streams, s)
	}
	s.Packets++

	ts := time.Time{}
	if md := pkt.Metadata(); md != nil {
		ts = md.Timestamp
	}
	x.assembler.AssembleWithTimestamp(pkt.NetworkLayer().NetworkFlow(), tcp, ts)
	return s.Index, true
}

// Finish flushes buffered segments and parses HTTP exchanges. Later Adds
// are ignored.
func (x *Index) Finish() []*Stream {
	if !x.finished {
		x.assembler.FlushAll()
		x.finished = true
		for _, s := range x.streams {
			if tx, err := tryParseHTTP(s.ClientData, s.ServerData); err == nil {
				s.HTTP = tx
			}
		}
	}
	return x.streams
}

// Field renders the stream as a detail node.
func (s *Stream) Field() m.Field {
	fields := []m.Field{
		m.F("index", m.Int(int64(s.Index))),
		m.F("client", m.String(s.Client)),
		m.F("server", m.String(s.Server)),
		m.F("packets", m.Int(int64(s.Packets))),
		m.F("client_bytes", m.Int(int64(len(s.ClientData)))),
		m.F("server_bytes", m.Int(int64(len(s.ServerData)))),
	}
	if s.HTTP != nil {
		fields = append(fields, s.HTTP.Field())
	}
	return m.F("tcp_stream", m.Node(fields...))
}

func (s *Stream) String() string {
	return fmt.Sprintf("stream %d %s <-> %s", s.Index, s.Client, s.Server)
}

// halfFactory hands the assembler one sink per direction.
type halfFactory struct {
	idx *Index
}

func (f *halfFactory) New(netFlow, tcpFlow gopacket.Flow) tcpassembly.Stream {
	from := endpoint(net.IP(netFlow.Src().Raw()), layers.TCPPort(binary.BigEndian.Uint16(tcpFlow.Src().Raw())))
	to := endpoint(net.IP(netFlow.Dst().Raw()), layers.TCPPort(binary.BigEndian.Uint16(tcpFlow.Dst().Raw())))
	return &half{stream: f.idx.byPair[flow.MakePair(from, to)], from: from}
}

type half struct {
	stream *Stream
	from   string
}

func (h *half) Reassembled(rs []tcpassembly.Reassembly) {
	if h.stream == nil {
		return
	}
	for _, r := range rs {
		if len(r.Bytes) == 0 {
			continue
		}
		if h.from == h.stream.Client {
			h.stream.ClientData = appendCapped(h.stream.ClientData, r.Bytes, maxStreamBuffer)
		} else {
			h.stream.ServerData = appendCapped(h.stream.ServerData, r.Bytes, maxStreamBuffer)
		}
	}
}

func (h *half) ReassemblyComplete() {}

func appendCapped(buf, data []byte, limit int) []byte {
	remaining := limit - len(buf)
	if remaining <= 0 {
		return buf
	}
	if len(data) > remaining {
		data = data[:remaining]
	}
	return append(buf, data...)
}
