package dataset

import (
	"time"

	m "netshield/internal/models"
)

func at(sec int) time.Time {
	return time.Date(2025, time.May, 26, 10, 0, sec, 0, time.UTC)
}

func ipv4(src, dst, proto string) m.Field {
	return m.F("ip", m.Node(
		m.F("version", m.Int(4)),
		m.F("src_ip", m.String(src)),
		m.F("dst_ip", m.String(dst)),
		m.F("protocol", m.String(proto)),
	))
}

func ether(src, dst string) m.Field {
	return m.F("ethernet", m.Node(
		m.F("src_mac", m.String(src)),
		m.F("dst_mac", m.String(dst)),
		m.F("type", m.String("IPv4")),
	))
}

const (
	hostMAC   = "00:11:22:33:44:55"
	routerMAC = "AA:BB:CC:DD:EE:FF"
)

// Builtin returns the demo capture: a DNS lookup, a TCP teardown, an HTTP
// exchange, a ping and an ARP resolution.
func Builtin() *Static {
	return &Static{records: []m.Record{
		{
			ID: "pkt1", Timestamp: at(1),
			Source: "192.168.1.100", Destination: "192.168.1.1",
			Protocol: "DNS", Length: 80, Status: m.StatusGood,
			Info: "DNS Standard query 0x1234 A example.com",
			Details: m.Node(
				ether(hostMAC, routerMAC),
				ipv4("192.168.1.100", "192.168.1.1", "UDP"),
				m.F("udp", m.Node(m.F("src_port", m.Int(53456)), m.F("dst_port", m.Int(53)))),
				m.F("dns", m.Node(m.F("query", m.String("example.com")), m.F("type", m.String("A")))),
			),
		},
		{
			ID: "pkt2", Timestamp: at(1),
			Source: "192.168.1.1", Destination: "192.168.1.100",
			Protocol: "DNS", Length: 120, Status: m.StatusGood,
			Info: "DNS Standard query response 0x1234 A 93.184.216.34",
			Details: m.Node(
				ether(routerMAC, hostMAC),
				ipv4("192.168.1.1", "192.168.1.100", "UDP"),
				m.F("udp", m.Node(m.F("src_port", m.Int(53)), m.F("dst_port", m.Int(53456)))),
				m.F("dns", m.Node(m.F("response", m.String("93.184.216.34")), m.F("type", m.String("A")))),
			),
		},
		{
			ID: "pkt3", Timestamp: at(2),
			Source: "10.0.0.5", Destination: "172.16.0.20",
			Protocol: "TCP", Length: 74, Status: m.StatusWarning,
			Info: "TCP 10.0.0.5:443 → 172.16.0.20:51234 [FIN, ACK] Seq=100 Ack=200 Len=0",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("10.0.0.5", "172.16.0.20", "TCP"),
				m.F("tcp", m.Node(
					m.F("src_port", m.Int(443)),
					m.F("dst_port", m.Int(51234)),
					m.F("flags", m.Strings("FIN", "ACK")),
				)),
			),
		},
		{
			ID: "pkt4", Timestamp: at(2),
			Source: "172.16.0.20", Destination: "10.0.0.5",
			Protocol: "TCP", Length: 60, Status: m.StatusGood,
			Info: "TCP 172.16.0.20:51234 → 10.0.0.5:443 [ACK] Seq=200 Ack=101 Len=0",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("172.16.0.20", "10.0.0.5", "TCP"),
				m.F("tcp", m.Node(
					m.F("src_port", m.Int(51234)),
					m.F("dst_port", m.Int(443)),
					m.F("flags", m.Strings("ACK")),
				)),
			),
		},
		{
			ID: "pkt5", Timestamp: at(3),
			Source: "192.168.1.100", Destination: "203.0.113.45",
			Protocol: "HTTP", Length: 300, Status: m.StatusGood,
			Info: "GET /api/data HTTP/1.1",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("192.168.1.100", "203.0.113.45", "TCP"),
				m.F("http", m.Node(
					m.F("method", m.String("GET")),
					m.F("path", m.String("/api/data")),
					m.F("host", m.String("api.example.com")),
				)),
			),
		},
		{
			ID: "pkt6", Timestamp: at(3),
			Source: "203.0.113.45", Destination: "192.168.1.100",
			Protocol: "HTTP", Length: 800, Status: m.StatusGood,
			Info: "HTTP/1.1 200 OK (application/json)",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("203.0.113.45", "192.168.1.100", "TCP"),
				m.F("http", m.Node(
					m.F("status_code", m.Int(200)),
					m.F("content_type", m.String("application/json")),
					m.F("keep_alive", m.Bool(true)),
				)),
			),
		},
		{
			ID: "pkt7", Timestamp: at(4),
			Source: "192.168.1.100", Destination: "8.8.4.4",
			Protocol: "ICMP", Length: 74, Status: m.StatusGood,
			Info: "Echo (ping) request id=0x2, seq=1",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("192.168.1.100", "8.8.4.4", "ICMP"),
				m.F("icmp", m.Node(m.F("type", m.String("Echo request")), m.F("sequence", m.Int(1)))),
			),
		},
		{
			ID: "pkt8", Timestamp: at(4),
			Source: "8.8.4.4", Destination: "192.168.1.100",
			Protocol: "ICMP", Length: 74, Status: m.StatusGood,
			Info: "Echo (ping) reply id=0x2, seq=1",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				ipv4("8.8.4.4", "192.168.1.100", "ICMP"),
				m.F("icmp", m.Node(m.F("type", m.String("Echo reply")), m.F("sequence", m.Int(1)))),
			),
		},
		{
			ID: "pkt9", Timestamp: at(5),
			Source: "10.0.0.15", Destination: "10.0.0.2",
			Protocol: "ARP", Length: 42,
			Info: "ARP Who has 10.0.0.2? Tell 10.0.0.15",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				m.F("arp", m.Node(
					m.F("opcode", m.String("request")),
					m.F("sender_ip", m.String("10.0.0.15")),
					m.F("target_ip", m.String("10.0.0.2")),
				)),
			),
		},
		{
			ID: "pkt10", Timestamp: at(5),
			Source: "10.0.0.2", Destination: "10.0.0.15",
			Protocol: "ARP", Length: 42,
			Info: "ARP 10.0.0.2 is at 00:0C:29:1A:2B:3C",
			Details: m.Node(
				m.F("ethernet", m.String("...")),
				m.F("arp", m.Node(
					m.F("opcode", m.String("reply")),
					m.F("sender_ip", m.String("10.0.0.2")),
					m.F("sender_mac", m.String("00:0C:29:1A:2B:3C")),
				)),
			),
		},
	}}
}
