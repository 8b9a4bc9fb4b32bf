package handler

import (
	"fmt"
	"html"
	"os"
	"strings"
)

const hostPlaceholder = "{{host}}"

const fallbackTemplate = "<html><body><h1>403 Forbidden</h1><p>Access to {{host}} is forbidden.</p></body></html>"

// LoadTemplate reads a 403 page template. An empty path yields the built-in page.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return fallbackTemplate, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return fallbackTemplate, fmt.Errorf("load forbidden template: %w", err)
	}
	return string(b), nil
}

// forbiddenResponse renders the full 403 response for host. Content-Length is
// the byte length of the rendered body.
func forbiddenResponse(template, host string) []byte {
	body := strings.ReplaceAll(template, hostPlaceholder, html.EscapeString(host))
	return []byte(fmt.Sprintf(
		"HTTP/1.1 403 Forbidden\r\n"+
			"Content-Type: text/html; charset=utf-8\r\n"+
			"Content-Length: %d\r\n"+
			"Connection: close\r\n"+
			"\r\n%s",
		len(body), body))
}

var (
	respEstablished    = []byte("HTTP/1.1 200 Connection Established\r\n\r\n")
	respGatewayTimeout = []byte("HTTP/1.1 504 Gateway Timeout\r\n\r\n")
	respBadGateway     = []byte("HTTP/1.1 502 Bad Gateway\r\n\r\n")
)
