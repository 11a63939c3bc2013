package diff

// splitLines splits text after each newline. The newline stays with its line.
func splitLines(text []rune) [][]rune {
	var lines [][]rune
	start := 0
	for i, r := range text {
		if r == '\n' {
			lines = append(lines, text[start:i+1])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// lineIDs maps each line to a small integer shared across both sides.
func lineIDs(lines [][]rune, ids map[string]int) []int {
	out := make([]int, len(lines))
	for i, l := range lines {
		key := string(l)
		id, ok := ids[key]
		if !ok {
			id = len(ids)
			ids[key] = id
		}
		out[i] = id
	}
	return out
}

// diffLines aligns a and b by whole lines, keeping unchanged lines equal,
// and diffs each changed block by character. A block that is still over
// budget is replaced whole.
func diffLines(bld *spanBuilder, a, b []rune, maxCost int) {
	la, lb := splitLines(a), splitLines(b)
	ids := make(map[string]int)

	ops, ok := myers(lineIDs(la, ids), lineIDs(lb, ids), maxCost)
	if !ok {
		bld.add(Removed, a)
		bld.add(Added, b)
		return
	}

	var oldBlock, newBlock []rune
	flush := func() {
		if len(oldBlock) == 0 && len(newBlock) == 0 {
			return
		}
		if blockOps, ok := myers(oldBlock, newBlock, maxCost); ok {
			bld.addOps(blockOps, oldBlock, newBlock)
		} else {
			bld.add(Removed, oldBlock)
			bld.add(Added, newBlock)
		}
		oldBlock, newBlock = nil, nil
	}

	for _, op := range ops {
		switch op.op {
		case Equal:
			flush()
			bld.add(Equal, la[op.oldIndex])
		case Removed:
			oldBlock = append(oldBlock, la[op.oldIndex]...)
		case Added:
			newBlock = append(newBlock, lb[op.newIndex]...)
		}
	}
	flush()
}
