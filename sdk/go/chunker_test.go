package portalfile

import (
	"math/rand"
	"testing"
)

func TestSplitChunksTable(t *testing.T) {
	tests := []struct {
		name      string
		size      int64
		chunkSize int64
		want      int
		lastLen   int64
	}{
		{"empty file", 0, 1024, 0, 0},
		{"smaller than chunk", 100, 1024, 1, 100},
		{"exactly one chunk", 1024, 1024, 1, 1024},
		{"one byte over", 1025, 1024, 2, 1},
		{"even split", 4096, 1024, 4, 1024},
		{"uneven split", 2500, 1024, 3, 452},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ranges := SplitChunks(tt.size, tt.chunkSize)
			if len(ranges) != tt.want {
				t.Fatalf("expected %d ranges, got %d", tt.want, len(ranges))
			}
			if tt.want == 0 {
				return
			}
			last := ranges[len(ranges)-1]
			if last.Length != tt.lastLen {
				t.Errorf("expected last chunk length %d, got %d", tt.lastLen, last.Length)
			}
		})
	}
}

func TestSplitChunksInvalidInput(t *testing.T) {
	if got := SplitChunks(100, 0); got != nil {
		t.Errorf("zero chunk size must yield nil, got %v", got)
	}
	if got := SplitChunks(-1, 1024); got != nil {
		t.Errorf("negative size must yield nil, got %v", got)
	}
}

// TestSplitChunksCoverage checks the structural invariants over random
// inputs: count is ceil(size/chunkSize), ranges are contiguous from zero,
// all but the last are full-size, and lengths sum to the file size.
func TestSplitChunksCoverage(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		size := rng.Int63n(1 << 20)
		chunkSize := rng.Int63n(64*1024) + 1

		ranges := SplitChunks(size, chunkSize)

		wantCount := int((size + chunkSize - 1) / chunkSize)
		if len(ranges) != wantCount {
			t.Fatalf("size=%d chunk=%d: expected %d ranges, got %d", size, chunkSize, wantCount, len(ranges))
		}

		var offset, total int64
		for j, cr := range ranges {
			if cr.Index != j {
				t.Fatalf("size=%d chunk=%d: range %d has index %d", size, chunkSize, j, cr.Index)
			}
			if cr.Offset != offset {
				t.Fatalf("size=%d chunk=%d: range %d starts at %d, expected %d", size, chunkSize, j, cr.Offset, offset)
			}
			if j < len(ranges)-1 && cr.Length != chunkSize {
				t.Fatalf("size=%d chunk=%d: non-final range %d has length %d", size, chunkSize, j, cr.Length)
			}
			if cr.Length <= 0 {
				t.Fatalf("size=%d chunk=%d: range %d has non-positive length", size, chunkSize, j)
			}
			offset += cr.Length
			total += cr.Length
		}
		if total != size {
			t.Fatalf("size=%d chunk=%d: lengths sum to %d", size, chunkSize, total)
		}
	}
}
