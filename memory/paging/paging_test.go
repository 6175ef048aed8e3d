package paging

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPlan_Cases(t *testing.T) {
	tests := []struct {
		name     string
		addr     uint32
		length   int
		pageSize int
		expected []Segment
	}{
		{
			name: "inside one page", addr: 10, length: 20, pageSize: 64,
			expected: []Segment{{10, 20}},
		},
		{
			name: "full page aligned", addr: 128, length: 64, pageSize: 64,
			expected: []Segment{{128, 64}},
		},
		{
			name: "single byte", addr: 63, length: 1, pageSize: 64,
			expected: []Segment{{63, 1}},
		},
		{
			name: "symmetric two page split", addr: 32, length: 64, pageSize: 64,
			expected: []Segment{{32, 32}, {64, 32}},
		},
		{
			name: "aligned start spanning two pages", addr: 64, length: 100, pageSize: 64,
			expected: []Segment{{64, 64}, {128, 36}},
		},
		{
			name: "partial head full middle partial tail", addr: 60, length: 200, pageSize: 64,
			expected: []Segment{{60, 4}, {64, 64}, {128, 64}, {192, 64}, {256, 4}},
		},
		{
			name: "ends exactly on boundary", addr: 30, length: 34, pageSize: 64,
			expected: []Segment{{30, 34}},
		},
		{
			name: "small page size", addr: 5, length: 10, pageSize: 8,
			expected: []Segment{{5, 3}, {8, 7}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Plan(tt.addr, tt.length, tt.pageSize))
		})
	}
}

// Exhaustive partition properties over a grid of offsets and lengths around
// page boundaries: lengths sum up, segments are contiguous, ascending and
// never span two pages.
func TestPlan_Properties(t *testing.T) {
	const pageSize = 64
	for _, addr := range []uint32{0, 1, 31, 32, 63, 64, 65, 127, 128, 1000} {
		for _, length := range []int{1, 2, 31, 32, 63, 64, 65, 128, 129, 300} {
			t.Run(fmt.Sprintf("addr_%d_len_%d", addr, length), func(t *testing.T) {
				segments := Plan(addr, length, pageSize)
				require.NotEmpty(t, segments)

				total := 0
				next := addr
				for _, s := range segments {
					assert.Equal(t, next, s.Addr, "segments must be contiguous")
					assert.Positive(t, s.Length)
					firstPage := s.Addr / pageSize
					lastPage := (s.Addr + uint32(s.Length) - 1) / pageSize
					assert.Equal(t, firstPage, lastPage, "segment %+v spans two pages", s)
					total += s.Length
					next = s.Addr + uint32(s.Length)
				}
				assert.Equal(t, length, total)
			})
		}
	}
}
