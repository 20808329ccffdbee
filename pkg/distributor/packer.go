package distributor

import (
	"strings"
)

// Pack greedily joins lines with newlines into payloads of at most maxBytes. A line longer than
// maxBytes is sent alone. Lines are never dropped, split or reordered.
func Pack(lines []string, maxBytes int) []string {
	var payloads []string
	var sb strings.Builder
	batched := 0
	for _, line := range lines {
		if batched > 0 && sb.Len()+1+len(line) > maxBytes {
			payloads = append(payloads, sb.String())
			sb.Reset()
			batched = 0
		}
		if batched > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		batched++
	}
	if batched > 0 {
		payloads = append(payloads, sb.String())
	}
	return payloads
}
