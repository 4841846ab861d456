package listview

import "fmt"

// SizeOptions are the page sizes an operator may pick.
var SizeOptions = []int{5, 10, 20, 50}

// DefaultSize is the page size of a fresh controller.
const DefaultSize = 10

// TotalPages returns max(1, ceil(total/size)).
// The server's own totalPages is not trusted so that total == 0 still shows one page.
func TotalPages(total, size int) int {
	if size <= 0 || total <= 0 {
		return 1
	}
	return (total + size - 1) / size
}

// ValidSize reports whether size is one of SizeOptions.
func ValidSize(size int) bool {
	for _, s := range SizeOptions {
		if s == size {
			return true
		}
	}
	return false
}

// PageLabel renders the one-based "current / total" label.
func PageLabel(page, totalPages int) string {
	return fmt.Sprintf("%d / %d", page+1, totalPages)
}
