package voice

import "github.com/mustafaciftc/sesli-sohbet/internal/client/peer"

type Health string

const (
	HealthUnknown   Health = "unknown"
	HealthExcellent Health = "excellent"
	HealthGood      Health = "good"
	HealthFair      Health = "fair"
	HealthPoor      Health = "poor"
)

// ConnectionStats are per-state counts of the peer mesh.
type ConnectionStats struct {
	Total        int `json:"total"`
	Connected    int `json:"connected"`
	Connecting   int `json:"connecting"`
	Failed       int `json:"failed"`
	Disconnected int `json:"disconnected"`
}

func (c *ConnectionStats) bucket(s peer.State, delta int) {
	switch s {
	case peer.StateConnected:
		c.Connected += delta
	case peer.StateConnecting:
		c.Connecting += delta
	case peer.StateFailed:
		c.Failed += delta
	case peer.StateDisconnected:
		c.Disconnected += delta
	}
}

// HealthOf rates the share of connected links.
func HealthOf(c ConnectionStats) Health {
	if c.Total == 0 {
		return HealthUnknown
	}
	ratio := float64(c.Connected) / float64(c.Total)
	switch {
	case c.Connected == c.Total:
		return HealthExcellent
	case ratio >= 0.7:
		return HealthGood
	case ratio >= 0.4:
		return HealthFair
	}
	return HealthPoor
}
