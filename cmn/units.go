package cmn

import (
	"strconv"
	"strings"
)

// decimal byte suffixes accepted by ParseSize.
var sizeSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"PB", 1e15},
	{"TB", 1e12},
	{"GB", 1e9},
	{"MB", 1e6},
	{"KB", 1e3},
	{"B", 1},
}

// ParseSize parses a decimal byte quantity with an optional KB/MB/GB/TB/PB
// suffix (spec §6). Bare numbers are taken as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, sx := range sizeSuffixes {
		if strings.HasSuffix(strings.ToUpper(s), sx.suffix) {
			numPart := s[:len(s)-len(sx.suffix)]
			numPart = strings.TrimSpace(numPart)
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, NewErr("parse_size", KindInvalidArgument, "bad size: "+s)
			}
			return int64(f * float64(sx.mult)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewErr("parse_size", KindInvalidArgument, "bad size: "+s)
	}
	return n, nil
}

var bwSuffixes = []struct {
	suffix string
	mult   int64
}{
	{"Gbps", 1e9},
	{"Mbps", 1e6},
	{"Kbps", 1e3},
	{"bps", 1},
}

// ParseBandwidth parses a bits-per-second quantity with an optional
// Mbps/Gbps suffix (spec §6).
func ParseBandwidth(s string) (int64, error) {
	s = strings.TrimSpace(s)
	for _, sx := range bwSuffixes {
		if strings.HasSuffix(s, sx.suffix) {
			numPart := strings.TrimSpace(s[:len(s)-len(sx.suffix)])
			f, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, NewErr("parse_bandwidth", KindInvalidArgument, "bad bandwidth: "+s)
			}
			return int64(f * float64(sx.mult)), nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, NewErr("parse_bandwidth", KindInvalidArgument, "bad bandwidth: "+s)
	}
	return n, nil
}
