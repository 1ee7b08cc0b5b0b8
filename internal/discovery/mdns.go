// Package discovery advertises the broker over mDNS so subscriber and
// publisher programs on the local network can find it without a
// hard-coded address.
package discovery

import (
	"fmt"
	"os"
	"strings"

	"github.com/grandcat/zeroconf"
)

const (
	serviceType = "_topicbroker._tcp"
	domain      = "local."
)

// Advertisement owns a registered mDNS service and stops it on Shutdown.
type Advertisement struct {
	server *zeroconf.Server
}

// Advertise registers the broker's TCP+UDP port pair (both bind to the same
// port per spec §6.5) under _topicbroker._tcp.
func Advertise(port int) (*Advertisement, error) {
	if port <= 0 {
		return nil, fmt.Errorf("discovery: invalid port %d", port)
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "topicbroker"
	}

	instance := sanitizeInstance(fmt.Sprintf("Topic Broker (%s)", hostname))
	txt := []string{
		fmt.Sprintf("tcp_port=%d", port),
		fmt.Sprintf("udp_port=%d", port),
		"proto=v1",
	}

	server, err := zeroconf.Register(instance, serviceType, domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("discovery: register: %w", err)
	}

	return &Advertisement{server: server}, nil
}

// Shutdown withdraws the mDNS advertisement. Safe to call on a nil
// *Advertisement.
func (a *Advertisement) Shutdown() {
	if a == nil || a.server == nil {
		return
	}
	a.server.Shutdown()
}

func sanitizeInstance(name string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = strings.ReplaceAll(cleaned, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	cleaned = strings.ReplaceAll(cleaned, ".", " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	if cleaned == "" {
		cleaned = "Topic Broker"
	}
	runes := []rune(cleaned)
	const maxLen = 63
	if len(runes) > maxLen {
		cleaned = string(runes[:maxLen])
	}
	return cleaned
}
