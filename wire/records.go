package wire

// Records is a batch of TLV records, the unit the log appends
// atomically (spec.md 4.D step 7: object + tombstone as one vector
// append).
type Records [][]byte

// TotalLen sums the byte length of every record in the batch, the
// figure Log.Append checks against the active segment's remaining
// budget before deciding whether to roll.
func (recs Records) TotalLen() (total int64) {
	for _, r := range recs {
		total += int64(len(r))
	}
	return
}
