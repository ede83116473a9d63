package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// Extractor resolves the real client IP, honoring forwarding headers only
// when the direct peer is a trusted proxy.
type Extractor struct {
	trustedProxies []*net.IPNet
}

// NewExtractor trusts the loopback and RFC 1918 ranges by default.
func NewExtractor() *Extractor {
	return &Extractor{
		trustedProxies: []*net.IPNet{
			mustParseCIDR("127.0.0.0/8"),
			mustParseCIDR("10.0.0.0/8"),
			mustParseCIDR("172.16.0.0/12"),
			mustParseCIDR("192.168.0.0/16"),
		},
	}
}

func mustParseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("failed to parse trusted proxy CIDR %s: %v", cidr, err))
	}
	return network
}

// AddTrustedProxy adds a trusted proxy network.
func (e *Extractor) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	e.trustedProxies = append(e.trustedProxies, network)
	return nil
}

// ClientIP extracts the real client IP from a request.
func (e *Extractor) ClientIP(r *http.Request) string {
	directIP, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		directIP = r.RemoteAddr
	}

	parsedDirectIP := net.ParseIP(directIP)
	if parsedDirectIP == nil {
		return directIP
	}

	// Forwarding headers are attacker-controlled unless the peer is a proxy
	// we run.
	if e.isTrustedProxy(parsedDirectIP) {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			ips := strings.Split(xff, ",")
			if len(ips) > 0 {
				clientIP := strings.TrimSpace(ips[0])
				if parsedIP := net.ParseIP(clientIP); parsedIP != nil {
					return clientIP
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if parsedIP := net.ParseIP(xri); parsedIP != nil {
				return xri
			}
		}
	}

	return directIP
}

func (e *Extractor) isTrustedProxy(ip net.IP) bool {
	for _, network := range e.trustedProxies {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
