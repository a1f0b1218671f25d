// Package bledb normalizes Bluetooth UUIDs and resolves the well-known
// Bluetooth SIG names for services, characteristics and descriptors.
package bledb

import (
	"strings"

	"github.com/google/uuid"
)

// sigBaseSuffix is the tail shared by every UUID derived from the Bluetooth SIG base UUID
// (0000xxxx-0000-1000-8000-00805f9b34fb).
const sigBaseSuffix = "00001000800000805f9b34fb"

// NormalizeUUID converts a UUID string to the internal format (lowercase, no dashes).
// Strips a 0x prefix and surrounding braces. 128-bit UUIDs built on the Bluetooth SIG
// base are reduced to their 16-bit short form. Returns "" when the input is not a UUID.
func NormalizeUUID(u string) string {
	s := strings.ToLower(strings.TrimSpace(u))
	s = strings.TrimPrefix(s, "0x")

	switch len(strings.Trim(s, "{}")) {
	case 4, 8:
		s = strings.Trim(s, "{}")
		if !isHex(s) {
			return ""
		}
		if len(s) == 8 && strings.HasPrefix(s, "0000") {
			return s[4:]
		}
		return s
	}

	parsed, err := uuid.Parse(s)
	if err != nil {
		return ""
	}
	compact := strings.ReplaceAll(parsed.String(), "-", "")
	if strings.HasSuffix(compact, sigBaseSuffix) && strings.HasPrefix(compact, "0000") {
		return compact[4:8]
	}
	return compact
}

// NormalizeUUIDs normalizes a slice of UUID strings, keeping the input order.
func NormalizeUUIDs(uuids []string) []string {
	out := make([]string, 0, len(uuids))
	for _, u := range uuids {
		out = append(out, NormalizeUUID(u))
	}
	return out
}

// LookupService returns the SIG name of a service UUID, or "" if unknown.
func LookupService(u string) string {
	return services[NormalizeUUID(u)]
}

// LookupCharacteristic returns the SIG name of a characteristic UUID, or "" if unknown.
func LookupCharacteristic(u string) string {
	return characteristics[NormalizeUUID(u)]
}

// LookupDescriptor returns the SIG name of a descriptor UUID, or "" if unknown.
func LookupDescriptor(u string) string {
	return descriptors[NormalizeUUID(u)]
}

// Lookup tries services, then characteristics, then descriptors.
func Lookup(u string) string {
	n := NormalizeUUID(u)
	if name, ok := services[n]; ok {
		return name
	}
	if name, ok := characteristics[n]; ok {
		return name
	}
	return descriptors[n]
}

func isHex(s string) bool {
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return s != ""
}
