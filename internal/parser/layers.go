package parser

import (
	"fmt"
	"net"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	m "netshield/internal/models"
)

func extractLayers(pkt gopacket.Packet) []m.Field {
	var result []m.Field
	for _, layer := range pkt.Layers() {
		if field, ok := parseLayer(layer); ok {
			result = append(result, field)
		}
	}
	if mgmt, ok := wlanManagement(pkt); ok {
		result = append(result, mgmt)
	}
	return result
}

func parseLayer(layer gopacket.Layer) (m.Field, bool) {
	switch l := layer.(type) {
	case *layers.RadioTap:
		return parseRadioTap(l), true
	case *layers.Dot11:
		return parseDot11(l), true
	case *layers.Ethernet:
		return parseEthernet(l), true
	case *layers.ARP:
		return parseARP(l), true
	case *layers.IPv4:
		return parseIPv4(l), true
	case *layers.IPv6:
		return parseIPv6(l), true
	case *layers.TCP:
		return parseTCP(l), true
	case *layers.UDP:
		return parseUDP(l), true
	case *layers.ICMPv4:
		return parseICMPv4(l), true
	case *layers.DNS:
		return parseDNS(l), true
	}
	return m.Field{}, false
}

func parseEthernet(eth *layers.Ethernet) m.Field {
	return m.F("ethernet", m.Node(
		m.F("src_mac", m.String(eth.SrcMAC.String())),
		m.F("dst_mac", m.String(eth.DstMAC.String())),
		m.F("type", m.String(eth.EthernetType.String())),
	))
}

func arpOperation(op uint16) string {
	switch op {
	case layers.ARPRequest:
		return "request"
	case layers.ARPReply:
		return "reply"
	}
	return fmt.Sprintf("unknown (%d)", op)
}

func parseARP(arp *layers.ARP) m.Field {
	return m.F("arp", m.Node(
		m.F("opcode", m.String(arpOperation(arp.Operation))),
		m.F("sender_mac", m.String(net.HardwareAddr(arp.SourceHwAddress).String())),
		m.F("sender_ip", m.String(net.IP(arp.SourceProtAddress).String())),
		m.F("target_mac", m.String(net.HardwareAddr(arp.DstHwAddress).String())),
		m.F("target_ip", m.String(net.IP(arp.DstProtAddress).String())),
	))
}

func parseIPv4(ip *layers.IPv4) m.Field {
	return m.F("ip", m.Node(
		m.F("version", m.Uint(uint64(ip.Version))),
		m.F("header_length", m.Uint(uint64(ip.IHL)*4)),
		m.F("tos", m.String(fmt.Sprintf("0x%02x", ip.TOS))),
		m.F("total_length", m.Uint(uint64(ip.Length))),
		m.F("identification", m.String(fmt.Sprintf("0x%04x", ip.Id))),
		m.F("flags", m.String(ip.Flags.String())),
		m.F("fragment_offset", m.Uint(uint64(ip.FragOffset))),
		m.F("ttl", m.Uint(uint64(ip.TTL))),
		m.F("protocol", m.String(ip.Protocol.String())),
		m.F("checksum", m.String(fmt.Sprintf("0x%04x", ip.Checksum))),
		m.F("src_ip", m.String(ip.SrcIP.String())),
		m.F("dst_ip", m.String(ip.DstIP.String())),
	))
}

func parseIPv6(ip *layers.IPv6) m.Field {
	return m.F("ipv6", m.Node(
		m.F("version", m.Uint(uint64(ip.Version))),
		m.F("traffic_class", m.String(fmt.Sprintf("0x%02x", ip.TrafficClass))),
		m.F("flow_label", m.String(fmt.Sprintf("0x%05x", ip.FlowLabel))),
		m.F("payload_length", m.Uint(uint64(ip.Length))),
		m.F("next_header", m.String(ip.NextHeader.String())),
		m.F("hop_limit", m.Uint(uint64(ip.HopLimit))),
		m.F("src_ip", m.String(ip.SrcIP.String())),
		m.F("dst_ip", m.String(ip.DstIP.String())),
	))
}

func tcpFlags(tcp *layers.TCP) []string {
	var flags []string
	if tcp.SYN {
		flags = append(flags, "SYN")
	}
	if tcp.FIN {
		flags = append(flags, "FIN")
	}
	if tcp.RST {
		flags = append(flags, "RST")
	}
	if tcp.PSH {
		flags = append(flags, "PSH")
	}
	if tcp.ACK {
		flags = append(flags, "ACK")
	}
	if tcp.URG {
		flags = append(flags, "URG")
	}
	return flags
}

func parseTCP(tcp *layers.TCP) m.Field {
	return m.F("tcp", m.Node(
		m.F("src_port", m.Uint(uint64(tcp.SrcPort))),
		m.F("dst_port", m.Uint(uint64(tcp.DstPort))),
		m.F("seq", m.Uint(uint64(tcp.Seq))),
		m.F("ack", m.Uint(uint64(tcp.Ack))),
		m.F("data_offset", m.Uint(uint64(tcp.DataOffset)*4)),
		m.F("flags", m.Strings(tcpFlags(tcp)...)),
		m.F("window", m.Uint(uint64(tcp.Window))),
		m.F("checksum", m.String(fmt.Sprintf("0x%04x", tcp.Checksum))),
		m.F("urgent", m.Uint(uint64(tcp.Urgent))),
	))
}

func parseUDP(udp *layers.UDP) m.Field {
	return m.F("udp", m.Node(
		m.F("src_port", m.Uint(uint64(udp.SrcPort))),
		m.F("dst_port", m.Uint(uint64(udp.DstPort))),
		m.F("length", m.Uint(uint64(udp.Length))),
		m.F("checksum", m.String(fmt.Sprintf("0x%04x", udp.Checksum))),
	))
}

func parseICMPv4(icmp *layers.ICMPv4) m.Field {
	return m.F("icmp", m.Node(
		m.F("type", m.String(icmp.TypeCode.String())),
		m.F("code", m.Uint(uint64(icmp.TypeCode.Code()))),
		m.F("checksum", m.String(fmt.Sprintf("0x%04x", icmp.Checksum))),
		m.F("id", m.String(fmt.Sprintf("0x%04x", icmp.Id))),
		m.F("sequence", m.Uint(uint64(icmp.Seq))),
	))
}

func parseDNS(dns *layers.DNS) m.Field {
	questions := make([]m.Detail, 0, len(dns.Questions))
	for _, q := range dns.Questions {
		questions = append(questions, m.Node(
			m.F("name", m.String(string(q.Name))),
			m.F("type", m.String(q.Type.String())),
			m.F("class", m.String(q.Class.String())),
		))
	}
	answers := make([]m.Detail, 0, len(dns.Answers))
	for _, a := range dns.Answers {
		data := m.Null()
		if a.IP != nil {
			data = m.String(a.IP.String())
		}
		answers = append(answers, m.Node(
			m.F("name", m.String(string(a.Name))),
			m.F("type", m.String(a.Type.String())),
			m.F("ttl", m.Uint(uint64(a.TTL))),
			m.F("address", data),
		))
	}
	return m.F("dns", m.Node(
		m.F("transaction_id", m.String(fmt.Sprintf("0x%04x", dns.ID))),
		m.F("response", m.Bool(dns.QR)),
		m.F("opcode", m.String(dns.OpCode.String())),
		m.F("questions", m.List(questions...)),
		m.F("answers", m.List(answers...)),
	))
}

// summarize determines the highest-level protocol and builds address/info strings.
func summarize(pkt gopacket.Packet) (protocol, src, dst, info string) {
	protocol = "Unknown"

	if ip4Layer := pkt.Layer(layers.LayerTypeIPv4); ip4Layer != nil {
		ip4 := ip4Layer.(*layers.IPv4)
		src, dst = ip4.SrcIP.String(), ip4.DstIP.String()
		protocol = "IPv4"
		info = ip4.Protocol.String()
	}
	if ip6Layer := pkt.Layer(layers.LayerTypeIPv6); ip6Layer != nil {
		ip6 := ip6Layer.(*layers.IPv6)
		src, dst = ip6.SrcIP.String(), ip6.DstIP.String()
		protocol = "IPv6"
		info = ip6.NextHeader.String()
	}

	switch {
	case pkt.Layer(layers.LayerTypeDNS) != nil:
		dns := pkt.Layer(layers.LayerTypeDNS).(*layers.DNS)
		protocol = "DNS"
		if dns.QR {
			info = fmt.Sprintf("Standard query response 0x%04x", dns.ID)
		} else {
			info = fmt.Sprintf("Standard query 0x%04x", dns.ID)
		}
		for _, q := range dns.Questions {
			info += " " + q.Type.String() + " " + string(q.Name)
		}
		for _, a := range dns.Answers {
			if a.IP != nil {
				info += " " + a.Type.String() + " " + a.IP.String()
			}
		}

	case pkt.Layer(layers.LayerTypeICMPv4) != nil:
		icmp := pkt.Layer(layers.LayerTypeICMPv4).(*layers.ICMPv4)
		protocol = "ICMP"
		info = fmt.Sprintf("%s id=0x%x, seq=%d", icmp.TypeCode.String(), icmp.Id, icmp.Seq)

	case pkt.Layer(layers.LayerTypeTCP) != nil:
		tcp := pkt.Layer(layers.LayerTypeTCP).(*layers.TCP)
		protocol = "TCP"
		info = fmt.Sprintf("%d → %d [%s] Seq=%d Ack=%d Win=%d Len=%d",
			tcp.SrcPort, tcp.DstPort, strings.Join(tcpFlags(tcp), ", "),
			tcp.Seq, tcp.Ack, tcp.Window, len(tcp.Payload))

	case pkt.Layer(layers.LayerTypeUDP) != nil:
		udp := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		protocol = "UDP"
		info = fmt.Sprintf("%d → %d Len=%d", udp.SrcPort, udp.DstPort, len(udp.Payload))

	case pkt.Layer(layers.LayerTypeARP) != nil:
		arp := pkt.Layer(layers.LayerTypeARP).(*layers.ARP)
		protocol = "ARP"
		src = net.IP(arp.SourceProtAddress).String()
		dst = net.IP(arp.DstProtAddress).String()
		if arp.Operation == layers.ARPRequest {
			info = fmt.Sprintf("Who has %s? Tell %s", dst, src)
		} else {
			info = fmt.Sprintf("%s is at %s", src, net.HardwareAddr(arp.SourceHwAddress))
		}
	}

	if protocol == "Unknown" {
		if s, d, i, ok := summarizeDot11(pkt); ok {
			protocol, src, dst, info = "802.11", s, d, i
		}
	}

	// Ethernet fallback
	if ethLayer := pkt.Layer(layers.LayerTypeEthernet); ethLayer != nil {
		eth := ethLayer.(*layers.Ethernet)
		if src == "" {
			src = eth.SrcMAC.String()
		}
		if dst == "" {
			dst = eth.DstMAC.String()
		}
		if protocol == "Unknown" {
			protocol = "Ethernet"
			info = eth.EthernetType.String()
		}
	}
	return protocol, src, dst, info
}
