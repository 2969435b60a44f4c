package utils

import (
	"net"
	"strings"

	"github.com/gin-gonic/gin"
)

var privateBlocks = mustParseCIDRs("10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "fc00::/7")

// ClientIP returns the caller's address, preferring the first public hop of
// X-Real-IP or X-Forwarded-For over the socket address.
func ClientIP(c *gin.Context) string {
	if realIP := strings.TrimSpace(c.GetHeader("X-Real-IP")); isPublicIP(realIP) {
		return realIP
	}

	if forwarded := c.GetHeader("X-Forwarded-For"); forwarded != "" {
		hops := strings.Split(forwarded, ",")
		for _, hop := range hops {
			if ip := strings.TrimSpace(hop); isPublicIP(ip) {
				return ip
			}
		}
		if first := strings.TrimSpace(hops[0]); net.ParseIP(first) != nil {
			return first
		}
	}

	return c.ClientIP()
}

// UserAgent returns the User-Agent header, or "Unknown" when absent
func UserAgent(c *gin.Context) string {
	if ua := c.Request.UserAgent(); ua != "" {
		return ua
	}
	return "Unknown"
}

// IsPrivateIP reports whether ip is loopback or inside an RFC 1918 / ULA block
func IsPrivateIP(ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(parsed) {
			return true
		}
	}
	return false
}

func isPublicIP(ip string) bool {
	return net.ParseIP(ip) != nil && !IsPrivateIP(ip)
}

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	blocks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			panic(err)
		}
		blocks = append(blocks, block)
	}
	return blocks
}
