package parser

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netshield/internal/models"
)

// Parse converts a decoded packet into a Record. number is the packet's
// 1-based position in its capture and is used to build the record id.
func Parse(pkt gopacket.Packet, number int) models.Record {
	rec := models.Record{
		ID:     fmt.Sprintf("pkt%d", number),
		Status: models.StatusGood,
	}
	if md := pkt.Metadata(); md != nil {
		rec.Timestamp = md.Timestamp.UTC()
		rec.Length = md.Length
	}
	if rec.Length == 0 {
		rec.Length = len(pkt.Data())
	}

	fields := extractLayers(pkt)
	app, hasApp := detectApp(pkt)
	if hasApp {
		fields = append(fields, app.field)
	}
	rec.Details = models.Node(fields...)

	rec.Protocol, rec.Source, rec.Destination, rec.Info = summarize(pkt)
	if hasApp {
		rec.Protocol = app.protocol
		rec.Info = app.info
	}
	rec.Status = classify(pkt)
	return rec
}

// classify tags resets as errors and unreachable notices as warnings.
func classify(pkt gopacket.Packet) models.Status {
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		if tcpLayer.(*layers.TCP).RST {
			return models.StatusError
		}
	}
	if icmpLayer := pkt.Layer(layers.LayerTypeICMPv4); icmpLayer != nil {
		if icmpLayer.(*layers.ICMPv4).TypeCode.Type() == layers.ICMPv4TypeDestinationUnreachable {
			return models.StatusWarning
		}
	}
	if pkt.ErrorLayer() != nil {
		return models.StatusWarning
	}
	return models.StatusGood
}
