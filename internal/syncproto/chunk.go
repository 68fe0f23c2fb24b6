package syncproto

import "unicode/utf8"

// SplitUTF8 splits data into chunks of at most maxBytes, never splitting in
// the middle of a multi-byte UTF-8 sequence. The document is UTF-8 JSON, so
// keeping chunks individually decodable lets a client render progress
// without buffering the whole transfer. Returns nil for empty input.
func SplitUTF8(data []byte, maxBytes int) [][]byte {
	if len(data) == 0 {
		return nil
	}
	if maxBytes <= 0 {
		maxBytes = 1
	}

	var chunks [][]byte
	for len(data) > 0 {
		if len(data) <= maxBytes {
			chunks = append(chunks, data)
			break
		}

		// Walk back from the limit until the next byte starts a rune.
		split := maxBytes
		for split > 0 && !utf8.RuneStart(data[split]) {
			split--
		}
		// A rune longer than maxBytes (or non-UTF-8 input) forces a
		// hard split at the limit.
		if split == 0 {
			split = maxBytes
		}

		chunks = append(chunks, data[:split])
		data = data[split:]
	}
	return chunks
}
