package portalfile

// ChunkRange describes one chunk's byte range within a file.
// Chunk i covers [Offset, Offset+Length).
type ChunkRange struct {
	Index  int
	Offset int64
	Length int64
}

// SplitChunks divides a file of the given size into fixed-size ranges.
// Every range is chunkSize bytes except the last, which carries the
// remainder. A zero-byte file yields no ranges.
func SplitChunks(size, chunkSize int64) []ChunkRange {
	if size <= 0 || chunkSize <= 0 {
		return nil
	}

	count := int((size + chunkSize - 1) / chunkSize)
	ranges := make([]ChunkRange, 0, count)
	for i := 0; i < count; i++ {
		offset := int64(i) * chunkSize
		length := chunkSize
		if offset+length > size {
			length = size - offset
		}
		ranges = append(ranges, ChunkRange{Index: i, Offset: offset, Length: length})
	}
	return ranges
}
