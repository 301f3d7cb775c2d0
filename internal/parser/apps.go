package parser

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	m "netshield/internal/models"
)

type appInfo struct {
	protocol string
	info     string
	field    m.Field
}

type transport struct {
	proto   string
	srcPort uint16
	dstPort uint16
	payload []byte
}

func transportOf(pkt gopacket.Packet) (transport, bool) {
	if tcpLayer := pkt.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		return transport{"TCP", uint16(tcp.SrcPort), uint16(tcp.DstPort), tcp.Payload}, true
	}
	if udpLayer := pkt.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		return transport{"UDP", uint16(udp.SrcPort), uint16(udp.DstPort), udp.Payload}, true
	}
	return transport{}, false
}

func (t transport) port(ports ...uint16) bool {
	for _, p := range ports {
		if t.srcPort == p || t.dstPort == p {
			return true
		}
	}
	return false
}

// detectApp applies payload heuristics for protocols gopacket does not
// decode by port. DNS is left to gopacket.
func detectApp(pkt gopacket.Packet) (appInfo, bool) {
	if pkt.Layer(layers.LayerTypeDNS) != nil {
		return appInfo{}, false
	}
	t, ok := transportOf(pkt)
	if !ok || len(t.payload) < 4 {
		return appInfo{}, false
	}
	data := t.payload

	switch {
	case isSIP(data) && t.port(5060, 5061):
		return parseSIP(data), true
	case isHTTP(data):
		return parseHTTP(data), true
	case bytes.HasPrefix(data, []byte("SSH-")):
		return parseSSH(data), true
	case t.proto == "TCP" && isTLSClientHello(data):
		return parseTLSClientHello(data), true
	case t.proto == "UDP" && t.port(443) && len(data) >= 5 && data[0]&0x80 != 0:
		return parseQUIC(data), true
	case isRTP(t):
		return parseRTP(data), true
	}
	return appInfo{}, false
}

func firstLine(data []byte) string {
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		data = data[:i]
	}
	return strings.TrimRight(string(data), "\r")
}

// headers parses "Name: value" lines after the start line, stopping at the
// first blank line.
func headers(data []byte, max int) []m.Field {
	lines := strings.Split(string(data), "\n")
	var out []m.Field
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" || len(out) >= max {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		out = append(out, m.F(strings.ToLower(strings.TrimSpace(name)), m.String(strings.TrimSpace(value))))
	}
	return out
}

var httpPrefixes = []string{"GET ", "POST", "PUT ", "DELE", "HEAD", "HTTP", "PATC", "OPTI"}

func isHTTP(data []byte) bool {
	s := string(data[:4])
	for _, p := range httpPrefixes {
		if s == p {
			return true
		}
	}
	return false
}

func parseHTTP(data []byte) appInfo {
	line := firstLine(data)
	fields := []m.Field{m.F("start_line", m.String(line))}
	parts := strings.SplitN(line, " ", 3)
	if strings.HasPrefix(line, "HTTP/") {
		if len(parts) >= 2 {
			fields = append(fields, m.F("status_code", m.String(parts[1])))
		}
	} else if len(parts) >= 2 {
		fields = append(fields, m.F("method", m.String(parts[0])), m.F("path", m.String(parts[1])))
	}
	if hs := headers(data, 32); len(hs) > 0 {
		fields = append(fields, m.F("headers", m.Node(hs...)))
	}
	return appInfo{protocol: "HTTP", info: line, field: m.F("http", m.Node(fields...))}
}

var sipMethods = []string{
	"SIP/", "INVITE ", "REGISTER ", "ACK ", "BYE ", "CANCEL ", "OPTIONS ",
	"PRACK ", "NOTIFY ", "PUBLISH ", "INFO ", "REFER ", "MESSAGE ", "UPDATE ", "SUBSCRIBE ",
}

func isSIP(data []byte) bool {
	for _, p := range sipMethods {
		if bytes.HasPrefix(data, []byte(p)) {
			return true
		}
	}
	return false
}

// sipCompact maps RFC 3261 compact header names to their long forms.
var sipCompact = map[string]string{
	"i": "call-id",
	"f": "from",
	"t": "to",
	"v": "via",
	"m": "contact",
	"l": "content-length",
	"c": "content-type",
}

func parseSIP(data []byte) appInfo {
	line := firstLine(data)
	method := line
	if i := strings.IndexByte(line, ' '); i > 0 {
		method = line[:i]
	}
	fields := []m.Field{
		m.F("start_line", m.String(line)),
		m.F("method", m.String(method)),
	}
	// Responses: "SIP/2.0 200 OK"
	if method == "SIP/2.0" {
		if parts := strings.SplitN(line, " ", 3); len(parts) == 3 {
			fields = append(fields,
				m.F("status_code", m.String(parts[1])),
				m.F("reason", m.String(parts[2])),
			)
		}
	}
	for _, h := range headers(data, 16) {
		if long, ok := sipCompact[h.Name]; ok {
			h.Name = long
		}
		fields = append(fields, h)
	}
	if sdp, ok := parseSDP(messageBody(data)); ok {
		fields = append(fields, sdp)
	}
	return appInfo{protocol: "SIP", info: line, field: m.F("sip", m.Node(fields...))}
}

func messageBody(data []byte) []byte {
	if i := bytes.Index(data, []byte("\r\n\r\n")); i >= 0 {
		return data[i+4:]
	}
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return data[i+2:]
	}
	return nil
}

// parseSDP extracts the session connection address and media lines.
func parseSDP(body []byte) (m.Field, bool) {
	if !bytes.HasPrefix(body, []byte("v=")) {
		return m.Field{}, false
	}
	var (
		conn  string
		media []m.Detail
	)
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "c="):
			// c=IN IP4 192.168.1.10
			if parts := strings.Fields(line[2:]); len(parts) == 3 && conn == "" {
				conn = parts[2]
			}
		case strings.HasPrefix(line, "m="):
			// m=audio 4000 RTP/AVP 0 8 101
			parts := strings.Fields(line[2:])
			if len(parts) < 3 {
				continue
			}
			media = append(media, m.Node(
				m.F("type", m.String(parts[0])),
				m.F("port", m.String(parts[1])),
				m.F("transport", m.String(parts[2])),
				m.F("formats", m.Strings(parts[3:]...)),
			))
		}
	}
	return m.F("sdp", m.Node(
		m.F("connection", m.String(conn)),
		m.F("media", m.List(media...)),
	)), true
}

// rtpPayloadTypes names the static audio/video payload types of RFC 3551.
var rtpPayloadTypes = map[uint8]string{
	0:  "ITU-T G.711 PCMU",
	3:  "GSM 06.10",
	4:  "ITU-T G.723",
	8:  "ITU-T G.711 PCMA",
	9:  "ITU-T G.722",
	13: "Comfort noise (CN)",
	18: "ITU-T G.729",
	26: "JPEG",
	31: "ITU-T H.261",
	34: "ITU-T H.263",
}

// RTPPayloadName returns the RFC 3551 name of a payload type, or
// "DynamicRTP-Type-N" for the dynamic range.
func RTPPayloadName(pt uint8) string {
	if name, ok := rtpPayloadTypes[pt]; ok {
		return name
	}
	if pt >= 96 {
		return fmt.Sprintf("DynamicRTP-Type-%d", pt)
	}
	return fmt.Sprintf("Unknown (%d)", pt)
}

// isRTP accepts RTP version 2 packets with a static or dynamic payload
// type. RTCP packet types (72-76 after masking the marker bit) are rejected.
func isRTP(t transport) bool {
	data := t.payload
	if t.proto != "UDP" || len(data) < 12 || data[0]>>6 != 2 {
		return false
	}
	if t.srcPort < 1024 || t.dstPort < 1024 {
		return false
	}
	pt := data[1] & 0x7f
	if pt >= 72 && pt <= 76 {
		return false
	}
	_, known := rtpPayloadTypes[pt]
	return known || pt >= 96
}

func parseRTP(data []byte) appInfo {
	csrc := int(data[0] & 0x0f)
	marker := data[1]&0x80 != 0
	pt := data[1] & 0x7f
	seq := binary.BigEndian.Uint16(data[2:4])
	ts := binary.BigEndian.Uint32(data[4:8])
	ssrc := binary.BigEndian.Uint32(data[8:12])

	payload := len(data) - 12 - 4*csrc
	if payload < 0 {
		payload = 0
	}
	fields := []m.Field{
		m.F("version", m.Uint(2)),
		m.F("padding", m.Bool(data[0]&0x20 != 0)),
		m.F("extension", m.Bool(data[0]&0x10 != 0)),
		m.F("csrc_count", m.Int(int64(csrc))),
		m.F("marker", m.Bool(marker)),
		m.F("payload_type", m.Uint(uint64(pt))),
		m.F("payload_name", m.String(RTPPayloadName(pt))),
		m.F("seq", m.Uint(uint64(seq))),
		m.F("timestamp", m.Uint(uint64(ts))),
		m.F("ssrc", m.String(fmt.Sprintf("0x%08x", ssrc))),
		m.F("payload_length", m.Int(int64(payload))),
	}
	info := fmt.Sprintf("PT=%s, SSRC=0x%08X, Seq=%d, Time=%d", RTPPayloadName(pt), ssrc, seq, ts)
	if marker {
		info += ", Mark"
	}
	return appInfo{protocol: "RTP", info: info, field: m.F("rtp", m.Node(fields...))}
}

func parseSSH(data []byte) appInfo {
	version := firstLine(data)
	if len(version) > 80 {
		version = version[:80]
	}
	fields := []m.Field{m.F("version_string", m.String(version))}
	// SSH-2.0-OpenSSH_8.9
	if parts := strings.SplitN(version, "-", 3); len(parts) == 3 {
		fields = append(fields,
			m.F("protocol_version", m.String(parts[1])),
			m.F("software", m.String(parts[2])),
		)
	}
	return appInfo{protocol: "SSH", info: "Version: " + version, field: m.F("ssh", m.Node(fields...))}
}

func parseQUIC(data []byte) appInfo {
	version := binary.BigEndian.Uint32(data[1:5])
	fields := []m.Field{
		m.F("header_form", m.String("long")),
		m.F("version", m.String(fmt.Sprintf("0x%08x", version))),
	}
	if len(data) >= 6 {
		dcidLen := int(data[5])
		fields = append(fields, m.F("dcid_length", m.Int(int64(dcidLen))))
		if dcidLen > 0 && len(data) >= 6+dcidLen {
			fields = append(fields, m.F("dcid", m.String(fmt.Sprintf("%x", data[6:6+dcidLen]))))
		}
	}
	return appInfo{protocol: "QUIC", info: "QUIC long header", field: m.F("quic", m.Node(fields...))}
}

// isTLSClientHello checks for a handshake record carrying a ClientHello.
func isTLSClientHello(data []byte) bool {
	return len(data) >= 6 && data[0] == 0x16 && data[1] == 0x03 && data[5] == 0x01
}

func tlsVersionString(v uint16) string {
	switch v {
	case 0x0300:
		return "SSL 3.0"
	case 0x0301:
		return "TLS 1.0"
	case 0x0302:
		return "TLS 1.1"
	case 0x0303:
		return "TLS 1.2"
	case 0x0304:
		return "TLS 1.3"
	}
	return fmt.Sprintf("0x%04x", v)
}

// parseTLSClientHello extracts the client version and server name. Truncated
// hellos yield whatever was read before the cut.
func parseTLSClientHello(data []byte) appInfo {
	fields := []m.Field{m.F("handshake", m.String("Client Hello"))}
	info := "Client Hello"
	sni, version := clientHelloSNI(data)
	if version != 0 {
		fields = append(fields, m.F("client_version", m.String(tlsVersionString(version))))
	}
	if sni != "" {
		fields = append(fields, m.F("sni", m.String(sni)))
		info += " (SNI=" + sni + ")"
	}
	return appInfo{protocol: "TLS", info: info, field: m.F("tls", m.Node(fields...))}
}

func clientHelloSNI(data []byte) (sni string, version uint16) {
	// record header (5) + handshake header (4)
	pos := 9
	if len(data) < pos+2 {
		return "", 0
	}
	version = binary.BigEndian.Uint16(data[pos : pos+2])
	pos += 2 + 32 // version + random

	if len(data) < pos+1 {
		return "", version
	}
	pos += 1 + int(data[pos]) // session id

	if len(data) < pos+2 {
		return "", version
	}
	pos += 2 + int(binary.BigEndian.Uint16(data[pos:pos+2])) // cipher suites

	if len(data) < pos+1 {
		return "", version
	}
	pos += 1 + int(data[pos]) // compression methods

	if len(data) < pos+2 {
		return "", version
	}
	extEnd := pos + 2 + int(binary.BigEndian.Uint16(data[pos:pos+2]))
	pos += 2
	if extEnd > len(data) {
		extEnd = len(data)
	}

	for pos+4 <= extEnd {
		extType := binary.BigEndian.Uint16(data[pos : pos+2])
		extLen := int(binary.BigEndian.Uint16(data[pos+2 : pos+4]))
		pos += 4
		if pos+extLen > extEnd {
			break
		}
		// server_name: list length (2), name type (1), name length (2), name
		if extType == 0x0000 && extLen >= 5 {
			ext := data[pos : pos+extLen]
			nameLen := int(binary.BigEndian.Uint16(ext[3:5]))
			if 5+nameLen <= len(ext) {
				return string(ext[5 : 5+nameLen]), version
			}
		}
		pos += extLen
	}
	return "", version
}
