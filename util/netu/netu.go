package netu

import (
	"fmt"
	"net"
	"strings"
)

// ResolveAddr resolves short address (e.g. ":8000") like Go does.
func ResolveAddr(addr string) (string, error) {
	// Early return if addr is a valid URL.
	if strings.Contains(addr, "://") {
		return addr, nil
	}

	resolved, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return "", err
	}

	host := "0.0.0.0"
	if resolved.IP != nil && !resolved.IP.IsUnspecified() {
		host = resolved.IP.String()
	}
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	switch resolved.Port {
	case 80:
		return "http://" + host, nil
	case 443:
		return "https://" + host, nil
	}
	return fmt.Sprintf("http://%s:%d", host, resolved.Port), nil
}
