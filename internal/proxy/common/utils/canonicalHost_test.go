package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalHost(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple", "example.com", "example.com"},
		{"trailing dot", "example.com.", "example.com"},
		{"multiple trailing dots", "example.com...", "example.com"},
		{"uppercase", "EXAMPLE.COM", "example.com"},
		{"surrounding whitespace", "  Sub.Example.Com  ", "sub.example.com"},
		{"ipv4 literal", "10.0.0.1", "10.0.0.1"},
		{"ipv6 literal", "2001:DB8::1", "2001:db8::1"},
		{"internationalized", "bücher.example", "xn--bcher-kva.example"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalHost(tt.input))
		})
	}
}

func TestApexDomain(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"www.example.com", "example.com"},
		{"a.b.c.example.co.uk", "example.co.uk"},
		{"Example.COM.", "example.com"},
		{"com", "com"},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ApexDomain(tt.input))
		})
	}
}
