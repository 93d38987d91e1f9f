package extractor

// Chunk splits text into consecutive windows of chunkSize runes (the last
// one may be shorter); paragraph boundaries are not considered. The
// structured extractor is called once per chunk and per-file results are
// merged by the worker using the same rules the aggregator uses across
// files.
func Chunk(text string, chunkSize int) []string {
	if chunkSize <= 0 {
		chunkSize = 8000
	}
	runes := []rune(text)
	if len(runes) <= chunkSize {
		if len(runes) == 0 {
			return nil
		}
		return []string{text}
	}

	var chunks []string
	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
