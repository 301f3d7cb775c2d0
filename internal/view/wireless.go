package view

import (
	"math"
	"sort"
	"strconv"

	"netshield/internal/models"
)

// Network is the per-BSS line of the 802.11 statistics.
type Network struct {
	SSID      string  `json:"ssid"`
	BSSID     string  `json:"bssid"`
	Channel   int     `json:"channel"`
	SignalDBm float64 `json:"signalDbm"`
	NoiseDBm  float64 `json:"noiseDbm"`
	RateMbps  float64 `json:"dataRateMbps"`
	Sent      int     `json:"packetsSent"`
	Received  int     `json:"packetsReceived"`
	Beacons   int     `json:"beacons"`
	Errors    int     `json:"errors"`

	signalN, noiseN int
}

// WirelessStats summarizes the 802.11 frames of a capture.
type WirelessStats struct {
	Frames   int       `json:"frames"`
	Errors   int       `json:"errors"`
	Networks []Network `json:"networks"`
}

func detailFloat(d models.Detail, path ...string) (float64, bool) {
	f, err := strconv.ParseFloat(d.LookupText(path...), 64)
	return f, err == nil
}

// Wireless aggregates frames carrying a wlan node by BSSID. Signal and noise
// are averaged over the frames that reported them, the data rate is the
// highest seen, and sent/received count frames from and to the BSSID.
// Networks are ordered by frame volume, ties keeping first-seen order.
func Wireless(captured []models.Record) WirelessStats {
	stats := WirelessStats{Networks: []Network{}}
	index := make(map[string]int)
	for _, r := range captured {
		wlan, ok := r.Details.Get("wlan")
		if !ok {
			continue
		}
		stats.Frames++
		bad := r.Details.LookupText("radiotap", "bad_fcs") == "true"
		if bad {
			stats.Errors++
		}
		bssid := wlan.LookupText("bssid")
		if bssid == "" {
			continue
		}
		i, seen := index[bssid]
		if !seen {
			i = len(stats.Networks)
			index[bssid] = i
			stats.Networks = append(stats.Networks, Network{BSSID: bssid})
		}
		n := &stats.Networks[i]

		if ssid := r.Details.LookupText("wlan_mgt", "ssid"); ssid != "" {
			n.SSID = ssid
		}
		if wlan.LookupText("type") == "Beacon frame" {
			n.Beacons++
		}
		switch bssid {
		case wlan.LookupText("transmitter"):
			n.Sent++
		case wlan.LookupText("receiver"):
			n.Received++
		}
		if bad {
			n.Errors++
		}

		if ch, ok := detailFloat(r.Details, "radiotap", "channel"); ok && ch > 0 {
			n.Channel = int(ch)
		} else if ch, ok := detailFloat(r.Details, "wlan_mgt", "ds_channel"); ok {
			n.Channel = int(ch)
		}
		if rate, ok := detailFloat(r.Details, "radiotap", "data_rate_mbps"); ok && rate > n.RateMbps {
			n.RateMbps = rate
		}
		if v, ok := detailFloat(r.Details, "radiotap", "signal_dbm"); ok {
			n.signalN++
			n.SignalDBm += (v - n.SignalDBm) / float64(n.signalN)
		}
		if v, ok := detailFloat(r.Details, "radiotap", "noise_dbm"); ok {
			n.noiseN++
			n.NoiseDBm += (v - n.NoiseDBm) / float64(n.noiseN)
		}
	}
	for i := range stats.Networks {
		n := &stats.Networks[i]
		n.SignalDBm = math.Round(n.SignalDBm*10) / 10
		n.NoiseDBm = math.Round(n.NoiseDBm*10) / 10
	}
	sort.SliceStable(stats.Networks, func(i, j int) bool {
		a, b := stats.Networks[i], stats.Networks[j]
		return a.Sent+a.Received > b.Sent+b.Received
	})
	return stats
}
