// Package chunker splits raw document text into overlapping, sentence-aware
// segments suitable for retrieval.
//
// Windows are measured in runes. When a window ends before the end of the
// text, the chunker prefers to cut just after the last period or newline in
// the window, provided that boundary lies past the window's midpoint.
// Consecutive windows overlap by the configured amount, and window starts
// always strictly increase so chunking terminates for any input.
package chunker
