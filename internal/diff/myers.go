package diff

// editOp represents a single edit operation in the script.
type editOp struct {
	op       Kind
	oldIndex int
	newIndex int
}

// myers returns a shortest edit script turning a into b.
//
// It uses the linear-space variant: each step finds the middle snake of the
// remaining problem and recurses on both halves, so memory stays O(n+m).
// It returns false when a search would explore more than maxCost edits;
// a negative maxCost means no bound.
func myers[T comparable](a, b []T, maxCost int) ([]editOp, bool) {
	s := &myersSearch[T]{a: a, b: b, maxCost: maxCost}
	if !s.compare(0, len(a), 0, len(b)) {
		return nil, false
	}
	return s.ops, true
}

type myersSearch[T comparable] struct {
	a, b    []T
	maxCost int
	ops     []editOp
}

// compare appends the script for a[a0:a1] against b[b0:b1].
func (s *myersSearch[T]) compare(a0, a1, b0, b1 int) bool {
	for a0 < a1 && b0 < b1 && s.a[a0] == s.b[b0] {
		s.ops = append(s.ops, editOp{op: Equal, oldIndex: a0, newIndex: b0})
		a0++
		b0++
	}
	suffix := 0
	for a1-suffix > a0 && b1-suffix > b0 && s.a[a1-suffix-1] == s.b[b1-suffix-1] {
		suffix++
	}
	a1 -= suffix
	b1 -= suffix

	switch {
	case a0 == a1:
		for j := b0; j < b1; j++ {
			s.ops = append(s.ops, editOp{op: Added, newIndex: j})
		}
	case b0 == b1:
		for i := a0; i < a1; i++ {
			s.ops = append(s.ops, editOp{op: Removed, oldIndex: i})
		}
	default:
		x, y, found, ok := s.middleSnake(a0, a1, b0, b1)
		if !ok {
			return false
		}
		// A split on a corner would not shrink the problem.
		if !found || (x == a0 && y == b0) || (x == a1 && y == b1) {
			s.replace(a0, a1, b0, b1)
			break
		}
		if !s.compare(a0, x, b0, y) || !s.compare(x, a1, y, b1) {
			return false
		}
	}

	for i := 0; i < suffix; i++ {
		s.ops = append(s.ops, editOp{op: Equal, oldIndex: a1 + i, newIndex: b1 + i})
	}
	return true
}

func (s *myersSearch[T]) replace(a0, a1, b0, b1 int) {
	for i := a0; i < a1; i++ {
		s.ops = append(s.ops, editOp{op: Removed, oldIndex: i})
	}
	for j := b0; j < b1; j++ {
		s.ops = append(s.ops, editOp{op: Added, newIndex: j})
	}
}

// middleSnake runs the forward and backward searches over a[a0:a1] and
// b[b0:b1] until they overlap, and returns the absolute split point.
// found is false when the searches never met; ok is false when the cost
// bound was hit.
func (s *myersSearch[T]) middleSnake(a0, a1, b0, b1 int) (x, y int, found, ok bool) {
	n := a1 - a0
	m := b1 - b0
	maxD := (n + m + 1) / 2

	// Diagonals never leave [-limit, limit] before the cost bound aborts.
	limit := maxD
	if s.maxCost >= 0 && s.maxCost/2+1 < limit {
		limit = s.maxCost/2 + 1
	}
	offset := limit
	size := 2*limit + 2

	vf := make([]int, size)
	vb := make([]int, size)
	for i := range vf {
		vf[i] = -1
		vb[i] = -1
	}
	vf[offset+1] = 0
	vb[offset+1] = 0

	delta := n - m
	front := delta%2 != 0

	// Diagonals that ran off the grid are skipped from then on.
	var kfStart, kfEnd, kbStart, kbEnd int

	for d := 0; d < maxD; d++ {
		if s.maxCost >= 0 && 2*d > s.maxCost {
			return 0, 0, false, false
		}

		for k := -d + kfStart; k <= d-kfEnd; k += 2 {
			i := offset + k
			var fx int
			if k == -d || (k != d && vf[i-1] < vf[i+1]) {
				fx = vf[i+1]
			} else {
				fx = vf[i-1] + 1
			}
			fy := fx - k
			for fx < n && fy < m && s.a[a0+fx] == s.b[b0+fy] {
				fx++
				fy++
			}
			vf[i] = fx

			switch {
			case fx > n:
				kfEnd += 2
			case fy > m:
				kfStart += 2
			case front:
				j := offset + delta - k
				if j >= 0 && j < size && vb[j] != -1 && fx >= n-vb[j] {
					return a0 + fx, b0 + fy, true, true
				}
			}
		}

		for k := -d + kbStart; k <= d-kbEnd; k += 2 {
			i := offset + k
			var bx int
			if k == -d || (k != d && vb[i-1] < vb[i+1]) {
				bx = vb[i+1]
			} else {
				bx = vb[i-1] + 1
			}
			by := bx - k
			for bx < n && by < m && s.a[a1-bx-1] == s.b[b1-by-1] {
				bx++
				by++
			}
			vb[i] = bx

			switch {
			case bx > n:
				kbEnd += 2
			case by > m:
				kbStart += 2
			case !front:
				j := offset + delta - k
				if j >= 0 && j < size && vf[j] != -1 {
					fx := vf[j]
					fy := offset + fx - j
					if fx >= n-bx {
						return a0 + fx, b0 + fy, true, true
					}
				}
			}
		}
	}
	return 0, 0, false, true
}
