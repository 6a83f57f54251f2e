package buffer

// Replacer selects a victim frame among currently-unpinned frames using an
// LRU policy. Grounded on helin/buffer.IReplacer's Pin/Unpin/ChooseVictim
// shape, but kept to a narrower four-operation contract (victim/pin/unpin/
// size) and backed by a true O(1) amortized doubly-linked-list
// implementation rather than helin's O(n) slice scan.
type Replacer interface {
	// Victim returns the least-recently-unpinned frame and removes it
	// from the replacer. ok is false if the replacer is empty.
	Victim() (frameID FrameID, ok bool)

	// Pin removes frameID from the replacer, if present. Idempotent.
	Pin(frameID FrameID)

	// Unpin adds frameID to the replacer as most-recently-used, if
	// absent. Idempotent.
	Unpin(frameID FrameID)

	// Size returns the number of frames currently held by the replacer.
	Size() int
}
