package handler

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse is reported when the first bytes carry no usable method or Host.
	ErrParse = errors.New("malformed request")
	// ErrOriginTimeout is reported when the origin cannot be reached in time.
	ErrOriginTimeout = errors.New("origin connect timeout")
	// ErrOriginRefused covers every other origin failure.
	ErrOriginRefused = errors.New("origin unreachable")
)

var tlsRecordPrefix = []byte{0x16, 0x03}

// isPreconnect reports a first read that is empty or is a TLS ClientHello
// sent without a CONNECT.
func isPreconnect(data []byte) bool {
	return len(data) == 0 || bytes.HasPrefix(data, tlsRecordPrefix)
}

// parseRequest extracts the method from the request line and the first Host
// header. Bytes that are not valid UTF-8 are dropped.
func parseRequest(data []byte) (method, host string, err error) {
	text := strings.ToValidUTF8(string(data), "")
	lines := strings.Split(text, "\r\n")

	fields := strings.Fields(lines[0])
	if len(fields) == 0 {
		return "", "", fmt.Errorf("%w: empty request line", ErrParse)
	}
	method = fields[0]

	for _, line := range lines[1:] {
		if len(line) < 5 || !strings.EqualFold(line[:5], "host:") {
			continue
		}
		host = strings.TrimSpace(line[5:])
		break
	}
	if host == "" {
		return "", "", fmt.Errorf("%w: no Host header", ErrParse)
	}
	return method, host, nil
}
