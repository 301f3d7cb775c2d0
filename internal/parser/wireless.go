package parser

import (
	"fmt"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	m "netshield/internal/models"
)

var dot11Names = map[layers.Dot11Type]string{
	layers.Dot11TypeMgmtBeacon:           "Beacon frame",
	layers.Dot11TypeMgmtProbeReq:         "Probe Request",
	layers.Dot11TypeMgmtProbeResp:        "Probe Response",
	layers.Dot11TypeMgmtAuthentication:   "Authentication",
	layers.Dot11TypeMgmtDeauthentication: "Deauthentication",
	layers.Dot11TypeMgmtAssociationReq:   "Association Request",
	layers.Dot11TypeMgmtAssociationResp:  "Association Response",
	layers.Dot11TypeCtrlAck:              "Acknowledgement",
	layers.Dot11TypeCtrlRTS:              "Request-to-send",
	layers.Dot11TypeCtrlCTS:              "Clear-to-send",
	layers.Dot11TypeData:                 "Data",
	layers.Dot11TypeDataNull:             "Null function (No data)",
	layers.Dot11TypeDataQOSData:          "QoS Data",
}

func dot11Name(t layers.Dot11Type) string {
	if name, ok := dot11Names[t]; ok {
		return name
	}
	return t.String()
}

// channelOf converts a centre frequency in MHz to an IEEE channel number.
func channelOf(freq int) int {
	switch {
	case freq == 2484:
		return 14
	case freq >= 2412 && freq < 2484:
		return (freq-2412)/5 + 1
	case freq >= 5000 && freq < 5900:
		return (freq - 5000) / 5
	}
	return 0
}

// bssidOf picks the BSSID address according to the DS bits.
func bssidOf(d *layers.Dot11) string {
	toDS, fromDS := d.Flags.ToDS(), d.Flags.FromDS()
	switch {
	case !toDS && !fromDS:
		return d.Address3.String()
	case toDS && !fromDS:
		return d.Address1.String()
	case !toDS && fromDS:
		return d.Address2.String()
	}
	return ""
}

func parseRadioTap(r *layers.RadioTap) m.Field {
	var fields []m.Field
	if r.Present.Channel() {
		freq := int(r.ChannelFrequency)
		fields = append(fields,
			m.F("frequency_mhz", m.Int(int64(freq))),
			m.F("channel", m.Int(int64(channelOf(freq)))),
		)
	}
	if r.Present.Rate() {
		fields = append(fields, m.F("data_rate_mbps", m.Float(float64(r.Rate)/2)))
	}
	if r.Present.DBMAntennaSignal() {
		fields = append(fields, m.F("signal_dbm", m.Int(int64(r.DBMAntennaSignal))))
	}
	if r.Present.DBMAntennaNoise() {
		fields = append(fields, m.F("noise_dbm", m.Int(int64(r.DBMAntennaNoise))))
	}
	if r.Present.Flags() {
		fields = append(fields, m.F("bad_fcs", m.Bool(r.Flags.BadFCS())))
	}
	return m.F("radiotap", m.Node(fields...))
}

func parseDot11(d *layers.Dot11) m.Field {
	return m.F("wlan", m.Node(
		m.F("type", m.String(dot11Name(d.Type))),
		m.F("flags", m.String(d.Flags.String())),
		m.F("receiver", m.String(d.Address1.String())),
		m.F("transmitter", m.String(d.Address2.String())),
		m.F("bssid", m.String(bssidOf(d))),
		m.F("seq", m.Uint(uint64(d.SequenceNumber))),
		m.F("frag", m.Uint(uint64(d.FragmentNumber))),
	))
}

// wlanManagement collects the tagged parameters of a management frame. Each
// element is its own gopacket layer, so they are gathered here into one node.
func wlanManagement(pkt gopacket.Packet) (m.Field, bool) {
	var fields []m.Field
	for _, layer := range pkt.Layers() {
		ie, ok := layer.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		switch ie.ID {
		case layers.Dot11InformationElementIDSSID:
			fields = append(fields, m.F("ssid", m.String(string(ie.Info))))
		case layers.Dot11InformationElementIDDSSet:
			if len(ie.Info) == 1 {
				fields = append(fields, m.F("ds_channel", m.Int(int64(ie.Info[0]))))
			}
		case layers.Dot11InformationElementIDRates:
			rates := make([]string, len(ie.Info))
			for i, b := range ie.Info {
				rates[i] = fmt.Sprintf("%g", float64(b&0x7f)/2)
			}
			fields = append(fields, m.F("supported_rates", m.Strings(rates...)))
		}
	}
	if len(fields) == 0 {
		return m.Field{}, false
	}
	return m.F("wlan_mgt", m.Node(fields...)), true
}

// summarizeDot11 builds the Wireshark-style line for a frame with no
// network layer: "Beacon frame, SN=100, SSID=HomeNet".
func summarizeDot11(pkt gopacket.Packet) (src, dst, info string, ok bool) {
	dl := pkt.Layer(layers.LayerTypeDot11)
	if dl == nil {
		return "", "", "", false
	}
	d := dl.(*layers.Dot11)
	info = fmt.Sprintf("%s, SN=%d", dot11Name(d.Type), d.SequenceNumber)
	if mgmt, ok := wlanManagement(pkt); ok {
		if ssid := mgmt.Value.LookupText("ssid"); ssid != "" {
			info += ", SSID=" + ssid
		}
	}
	dst = d.Address1.String()
	src = d.Address2.String()
	if src == "" {
		src = dst
	}
	return src, dst, info, true
}
