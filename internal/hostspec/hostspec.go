// Package hostspec expands host specifications into ordered address lists.
//
// A specification is a comma or whitespace separated list of items. Each item
// is one of:
//
//	10.0.0.1           a single address (IPv4 or IPv6)
//	10.0.0.0/28        every address in a CIDR prefix
//	10.0.1-3.*         IPv4 with per-octet ranges, "*" meaning 0-255
//	host.example.com   a host name, lower-cased
//
// The expanded list keeps specification order and drops duplicates.
package hostspec

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	"github.com/anstrom/pingscan/internal/errors"
)

// DefaultMaxAddresses bounds how many addresses a single specification may
// expand to.
const DefaultMaxAddresses = 65536

const (
	octetCount    = 4
	maxOctet      = 255
	rangeParts    = 2
	wildcardOctet = "*"
)

// Expand parses spec with the default size limit.
func Expand(spec string) ([]string, error) {
	return ExpandLimit(spec, DefaultMaxAddresses)
}

// ExpandLimit parses spec, failing once more than limit addresses would be
// produced. A limit of zero or less disables the check.
func ExpandLimit(spec string, limit int) ([]string, error) {
	items := strings.FieldsFunc(spec, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
	if len(items) == 0 {
		return nil, errors.ErrInvalidTarget(spec, fmt.Errorf("empty host specification"))
	}

	l := &list{seen: make(map[string]bool), limit: limit}
	for _, item := range items {
		if err := expandItem(item, l); err != nil {
			return nil, errors.ErrInvalidTarget(item, err)
		}
	}
	return l.addrs, nil
}

// MustExpand is Expand for tests and constants; it panics on error.
func MustExpand(spec string) []string {
	addrs, err := Expand(spec)
	if err != nil {
		panic(err)
	}
	return addrs
}

type list struct {
	addrs []string
	seen  map[string]bool
	limit int
}

func (l *list) add(addr string) error {
	if l.seen[addr] {
		return nil
	}
	if l.limit > 0 && len(l.addrs) >= l.limit {
		return fmt.Errorf("specification expands to more than %d addresses", l.limit)
	}
	l.seen[addr] = true
	l.addrs = append(l.addrs, addr)
	return nil
}

func expandItem(item string, l *list) error {
	if strings.Contains(item, "/") {
		return expandPrefix(item, l)
	}
	if addr, err := netip.ParseAddr(item); err == nil {
		return l.add(addr.String())
	}
	if looksLikeOctetRange(item) {
		return expandOctets(item, l)
	}
	if !validHostname(item) {
		return fmt.Errorf("not an address, range or host name")
	}
	return l.add(strings.ToLower(item))
}

func expandPrefix(item string, l *list) error {
	prefix, err := netip.ParsePrefix(item)
	if err != nil {
		return err
	}
	prefix = prefix.Masked()

	hostBits := prefix.Addr().BitLen() - prefix.Bits()
	if l.limit > 0 && hostBits < 63 && (1<<hostBits) > l.limit-len(l.addrs) {
		return fmt.Errorf("prefix %s exceeds the %d address limit", prefix, l.limit)
	}

	for addr := prefix.Addr(); addr.IsValid() && prefix.Contains(addr); addr = addr.Next() {
		if err := l.add(addr.String()); err != nil {
			return err
		}
	}
	return nil
}

// looksLikeOctetRange reports whether item is four dot separated octet
// expressions made only of digits, '-' and '*'.
func looksLikeOctetRange(item string) bool {
	parts := strings.Split(item, ".")
	if len(parts) != octetCount {
		return false
	}
	for _, part := range parts {
		if part == "" {
			return false
		}
		for _, r := range part {
			if (r < '0' || r > '9') && r != '-' && r != '*' {
				return false
			}
		}
	}
	return true
}

func expandOctets(item string, l *list) error {
	var bounds [octetCount][rangeParts]int
	for i, part := range strings.Split(item, ".") {
		lo, hi, err := parseOctet(part)
		if err != nil {
			return err
		}
		bounds[i] = [rangeParts]int{lo, hi}
	}

	total := 1
	for _, b := range bounds {
		total *= b[1] - b[0] + 1
	}
	if l.limit > 0 && total > l.limit-len(l.addrs) {
		return fmt.Errorf("range %s exceeds the %d address limit", item, l.limit)
	}

	for a := bounds[0][0]; a <= bounds[0][1]; a++ {
		for b := bounds[1][0]; b <= bounds[1][1]; b++ {
			for c := bounds[2][0]; c <= bounds[2][1]; c++ {
				for d := bounds[3][0]; d <= bounds[3][1]; d++ {
					addr := netip.AddrFrom4([4]byte{byte(a), byte(b), byte(c), byte(d)})
					if err := l.add(addr.String()); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

func parseOctet(part string) (int, int, error) {
	if part == wildcardOctet {
		return 0, maxOctet, nil
	}
	if strings.Contains(part, "-") {
		bounds := strings.Split(part, "-")
		if len(bounds) != rangeParts {
			return 0, 0, fmt.Errorf("invalid octet range: %s", part)
		}
		lo, err := octet(bounds[0])
		if err != nil {
			return 0, 0, err
		}
		hi, err := octet(bounds[1])
		if err != nil {
			return 0, 0, err
		}
		if lo > hi {
			return 0, 0, fmt.Errorf("invalid octet range: %s (start greater than end)", part)
		}
		return lo, hi, nil
	}
	v, err := octet(part)
	return v, v, err
}

func octet(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 || v > maxOctet {
		return 0, fmt.Errorf("invalid octet: %q", s)
	}
	return v, nil
}

// validHostname applies RFC 1123 label rules.
func validHostname(name string) bool {
	name = strings.TrimSuffix(name, ".")
	if name == "" || len(name) > 253 {
		return false
	}
	labels := strings.Split(name, ".")
	if _, err := strconv.Atoi(labels[len(labels)-1]); err == nil {
		// a numeric top label is a malformed address, not a name
		return false
	}
	for _, label := range labels {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
			if !isAlnum && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}
