package utils

import (
	"strings"

	ua "github.com/mssola/user_agent"
)

// ClientInfo is the parsed form of a User-Agent header, stored with audit rows
type ClientInfo struct {
	Kind    string `json:"kind"` // browser, bot, server
	OS      string `json:"os,omitempty"`
	Browser string `json:"browser,omitempty"`
	Version string `json:"version,omitempty"`
	Mobile  bool   `json:"mobile"`
}

// ParseUserAgent classifies a User-Agent string.
// Server-to-server callers such as payment webhooks usually land in "server".
func ParseUserAgent(userAgent string) ClientInfo {
	if userAgent == "" || userAgent == "Unknown" {
		return ClientInfo{Kind: "unknown"}
	}

	parser := ua.New(userAgent)
	info := ClientInfo{Mobile: parser.Mobile()}

	name, version := parser.Browser()
	info.Browser = name
	info.Version = version
	if osInfo := parser.OSInfo(); osInfo.Name != "" {
		info.OS = strings.TrimSpace(osInfo.Name + " " + osInfo.Version)
	}

	switch {
	case parser.Bot():
		info.Kind = "bot"
	case parser.Mozilla() == "":
		info.Kind = "server"
	default:
		info.Kind = "browser"
	}
	return info
}

// Map returns the info as a JSON-friendly map for audit details
func (i ClientInfo) Map() map[string]interface{} {
	out := map[string]interface{}{
		"kind":   i.Kind,
		"mobile": i.Mobile,
	}
	if i.OS != "" {
		out["os"] = i.OS
	}
	if i.Browser != "" {
		out["browser"] = i.Browser
	}
	if i.Version != "" {
		out["version"] = i.Version
	}
	return out
}
