package hash

import "github.com/cespare/xxhash/v2"

// ID computes the xxHash64 of the given string.
func ID(data string) uint64 {
	return xxhash.Sum64String(data)
}

// Tuple computes the xxHash64 of an ordered tuple of strings.
//
// Each element is followed by a 0xff separator byte, which never occurs in valid
// UTF-8, so ("ab", "c") and ("a", "bc") hash differently.
func Tuple(parts []string) uint64 {
	d := xxhash.New()
	for _, p := range parts {
		_, _ = d.WriteString(p)
		_, _ = d.Write(separator)
	}

	return d.Sum64()
}

var separator = []byte{0xff}
