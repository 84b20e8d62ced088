package resumable

import "regexp"

// Object metadata is sent as HTTP headers, which only carry printable ASCII.
var nonPrintableRegexp = regexp.MustCompile(`[^\x09\x20-\x7E]`)

// storeMetadata returns a copy of metadata that the store accepts as native object
// metadata: every character outside printable ASCII becomes "?".
func storeMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	degraded := make(map[string]string, len(metadata))
	for key, value := range metadata {
		degraded[key] = nonPrintableRegexp.ReplaceAllString(value, "?")
	}
	return degraded
}
