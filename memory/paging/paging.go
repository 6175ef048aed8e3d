// Package paging splits linear memory ranges into page-bounded segments.
// Serial EEPROMs latch writes into a fixed-size page buffer; a transaction
// that crosses a page boundary wraps around inside the page instead of
// advancing, so multi-page transfers must be issued one page at a time.
package paging

// Segment is a single-page-bounded slice of a requested range.
type Segment struct {
	Addr   uint32
	Length int
}

// Plan decomposes [addr, addr+length) into ordered segments such that no
// segment crosses a pageSize boundary. Segments partition the range: lengths
// sum to length, there are no gaps or overlaps, and addresses ascend. The
// first and last segments may be partial pages.
//
// length and pageSize must be positive; callers validate requests before
// planning.
func Plan(addr uint32, length, pageSize int) []Segment {
	segments := make([]Segment, 0, length/pageSize+2)
	for length > 0 {
		space := pageSize - int(addr)%pageSize
		if space > length {
			space = length
		}
		segments = append(segments, Segment{Addr: addr, Length: space})
		addr += uint32(space)
		length -= space
	}
	return segments
}
