package store

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ComputeContentHash hashes document content together with the settings it
// was built under, so a settings change invalidates the hash. Settings are
// hashed in key order.
func ComputeContentHash(content []byte, settings map[string]string) string {
	h := sha256.New()
	h.Write(content)

	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "\nsetting:%s=%s", k, settings[k])
	}
	return fmt.Sprintf("%x", h.Sum(nil))
}
