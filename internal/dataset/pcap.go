package dataset

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"netshield/internal/models"
	"netshield/internal/parser"
	"netshield/internal/stream"
)

// MaxPcapRecords bounds how many packets LoadPcap keeps from one file.
// Longer captures are truncated and flagged; see Static.Truncated.
const MaxPcapRecords = 100000

var pcapngMagic = []byte{0x0a, 0x0d, 0x0d, 0x0a}

type packetReader interface {
	gopacket.PacketDataSource
	LinkType() layers.LinkType
}

// LoadPcap decodes a pcap or pcapng stream into a static source. Packets
// that fail to decode are kept with whatever layers were recovered. TCP
// records carry a tcp_stream detail node; the first record of a stream
// also carries the reassembled HTTP exchange when there is one.
func LoadPcap(r io.Reader) (*Static, error) {
	return LoadPcapLimit(r, MaxPcapRecords)
}

// LoadPcapLimit is LoadPcap keeping at most limit packets.
func LoadPcapLimit(r io.Reader, limit int) (*Static, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(4)
	if err != nil {
		return nil, fmt.Errorf("read capture header: %w", err)
	}

	var reader packetReader
	if bytes.Equal(magic, pcapngMagic) {
		reader, err = pcapgo.NewNgReader(br, pcapgo.DefaultNgReaderOptions)
	} else {
		reader, err = pcapgo.NewReader(br)
	}
	if err != nil {
		return nil, fmt.Errorf("open capture: %w", err)
	}

	source := gopacket.NewPacketSource(reader, reader.LinkType())
	source.DecodeOptions = gopacket.DecodeOptions{Lazy: false, NoCopy: true}

	var (
		records []models.Record
		ids     []int
		idx     = stream.NewIndex()
	)
	truncated := false
	for {
		if len(records) >= limit {
			// One more read tells a full file from a cut one.
			_, err := source.NextPacket()
			truncated = err == nil
			break
		}
		pkt, err := source.NextPacket()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if len(records) == 0 {
				return nil, fmt.Errorf("read first packet: %w", err)
			}
			// Truncated trailing packet; keep what was read.
			break
		}
		records = append(records, parser.Parse(pkt, len(records)+1))
		if sid, ok := idx.Add(pkt); ok {
			ids = append(ids, sid)
		} else {
			ids = append(ids, -1)
		}
	}

	streams := idx.Finish()
	seen := make(map[int]bool, len(streams))
	for i, sid := range ids {
		if sid < 0 {
			continue
		}
		s := streams[sid]
		f := s.Field()
		if seen[sid] {
			f = stripHTTP(s)
		}
		seen[sid] = true
		records[i].Details = records[i].Details.With(f)
	}
	if truncated {
		log.Printf("pcap: truncated at %d packets", limit)
	}
	return &Static{records: records, truncated: truncated}, nil
}

func stripHTTP(s *stream.Stream) models.Field {
	c := *s
	c.HTTP = nil
	return c.Field()
}
