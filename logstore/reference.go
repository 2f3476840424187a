package logstore

// Reference is the opaque log reference spec.md 3 describes: dereferencing
// it via GetEntry yields (entryType, bytes). The encoding packs a segment
// id and an in-segment offset; callers must treat it as opaque.
type Reference uint64

const offsetBits = 32

// NewReference packs a segment id and offset into an opaque reference.
func NewReference(segmentId uint64, offset uint32) Reference {
	return Reference(segmentId<<offsetBits | uint64(offset))
}

// SegmentId returns the segment this reference points into.
func (r Reference) SegmentId() uint64 {
	return uint64(r) >> offsetBits
}

// Offset returns the byte offset within the segment.
func (r Reference) Offset() uint32 {
	return uint32(uint64(r) & (1<<offsetBits - 1))
}

// NoReference is the zero value, never a valid reference (segment 0,
// offset 0, is reserved).
const NoReference Reference = 0
