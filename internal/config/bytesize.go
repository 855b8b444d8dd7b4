package config

import (
	"strconv"
	"strings"
)

// ByteSize is a byte count that accepts size-suffixed strings in config
// sources: "64M", "2G", "128K" (suffixes are case-insensitive powers of
// 1024). Plain numeric strings parse as exact byte counts.
type ByteSize int64

// Decode implements envconfig.Decoder.
func (b *ByteSize) Decode(value string) error {
	*b = ByteSize(ParseByteSize(value))
	return nil
}

// UnmarshalYAML accepts either a YAML integer or a suffixed string.
func (b *ByteSize) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw interface{}
	if err := unmarshal(&raw); err != nil {
		return err
	}

	switch v := raw.(type) {
	case string:
		*b = ByteSize(ParseByteSize(v))
	case int:
		*b = ByteSize(v)
	case int64:
		*b = ByteSize(v)
	case uint64:
		*b = ByteSize(v)
	case float64:
		*b = ByteSize(v)
	default:
		*b = 0
	}
	if *b < 0 {
		*b = 0
	}
	return nil
}

// ParseByteSize converts a size string to bytes. Numeric strings parse
// exactly; a trailing k/K, m/M or g/G multiplies by 1024, 1024^2 or
// 1024^3. Any other trailing character is dropped and the remaining
// numeric prefix is used. Unparseable input yields 0.
func ParseByteSize(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if n < 0 {
			return 0
		}
		return n
	}

	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
	case 'm', 'M':
		mult = 1 << 20
	case 'g', 'G':
		mult = 1 << 30
	}

	rest := strings.TrimSpace(s[:len(s)-1])
	digits := rest
	for i, ch := range rest {
		if ch < '0' || ch > '9' {
			digits = rest[:i]
			break
		}
	}
	if digits == "" {
		return 0
	}

	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n * mult
}
