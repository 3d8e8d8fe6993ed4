package slides

import "github.com/FocuswithJustin/ParashaDeck/core/ir"

// Annotate returns, in increasing order, the indices i of chunk where verse
// i does not directly follow verse i-1 in the same chapter.
func Annotate(chunk []ir.VerseRecord) []int {
	var gaps []int
	for i := 1; i < len(chunk); i++ {
		prev, curr := chunk[i-1], chunk[i]
		if curr.Book != prev.Book || curr.Chapter != prev.Chapter || curr.Verse != prev.Verse+1 {
			gaps = append(gaps, i)
		}
	}
	return gaps
}
