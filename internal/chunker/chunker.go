package chunker

// Chunk is one contiguous window of page numbers that is submitted to the
// extraction capability as a single rebuilt document.
type Chunk struct {
	Index int   // Sequence number within the document
	Pages []int // 1-indexed page numbers, in submission order
}

// PageRange returns the page numbers start..end inclusive. It returns nil
// when end < start.
func PageRange(start, end int) []int {
	if end < start {
		return nil
	}
	pages := make([]int, 0, end-start+1)
	for p := start; p <= end; p++ {
		pages = append(pages, p)
	}
	return pages
}

// Windows partitions pages into consecutive, non-overlapping chunks of at
// most size pages, preserving order. The last chunk may be smaller. A
// non-positive size yields a single chunk holding every page.
func Windows(pages []int, size int) []Chunk {
	if len(pages) == 0 {
		return nil
	}
	if size <= 0 || size >= len(pages) {
		return []Chunk{{Index: 0, Pages: copyPages(pages)}}
	}

	chunks := make([]Chunk, 0, (len(pages)+size-1)/size)
	for start := 0; start < len(pages); start += size {
		end := min(start+size, len(pages))
		chunks = append(chunks, Chunk{
			Index: len(chunks),
			Pages: copyPages(pages[start:end]),
		})
	}
	return chunks
}

// FirstPages returns pages 1..min(total, limit).
func FirstPages(total, limit int) []int {
	return PageRange(1, min(total, limit))
}

func copyPages(pages []int) []int {
	out := make([]int, len(pages))
	copy(out, pages)
	return out
}
