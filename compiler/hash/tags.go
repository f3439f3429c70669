package hash

// ---------------------------------------------------------------------------
// Frozen tag bytes for symbol identity serialization.
//
// IMPORTANT: These tags are FROZEN. Once assigned, a tag byte must never
// change meaning. Adding new tags is fine; changing existing ones changes
// every previously computed symbol hash and breaks linking against
// assembled artifacts.
// ---------------------------------------------------------------------------

// HashVersion is the version prefix for the serialization format.
const HashVersion byte = 1

// Symbol kind tags.
const (
	TagReservedZero byte = 0x00

	TagPage     byte = 0x01
	TagClass    byte = 0x02
	TagFunction byte = 0x03
	TagVariable byte = 0x04
	TagNative   byte = 0x05
	TagGetter   byte = 0x06
	TagSetter   byte = 0x07
	TagMethod   byte = 0x08
	TagLoop     byte = 0x09
)

// allTags lists every defined tag for uniqueness verification in tests.
var allTags = []byte{
	TagReservedZero,
	TagPage, TagClass, TagFunction, TagVariable, TagNative,
	TagGetter, TagSetter, TagMethod, TagLoop,
}
