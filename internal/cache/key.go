package cache

import (
	"fmt"
	"hash/fnv"
	"sort"
)

// Fingerprint builds a deterministic cache key from a label and a set of
// request parts. Slices contribute their elements in order; maps contribute
// their pairs sorted by key, so two equivalent requests always collapse to
// the same fingerprint.
func Fingerprint(label string, parts ...any) uint64 {
	h := fnv.New64a()
	h.Write([]byte(label))
	for _, p := range parts {
		writePart(h, p)
	}
	return h.Sum64()
}

func writePart(h interface{ Write([]byte) (int, error) }, p any) {
	switch v := p.(type) {
	case nil:
		h.Write([]byte{0})
	case []string:
		h.Write([]byte{'['})
		for _, s := range v {
			fmt.Fprintf(h, "%s|", s)
		}
		h.Write([]byte{']'})
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		h.Write([]byte{'{'})
		for _, k := range keys {
			fmt.Fprintf(h, "%s=%s|", k, v[k])
		}
		h.Write([]byte{'}'})
	default:
		fmt.Fprintf(h, "%v;", v)
	}
}
