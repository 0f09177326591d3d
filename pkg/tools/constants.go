package tools

// Input limits and defaults
const (
	// MaxReferenceLength caps the free-text reference accepted by the
	// resolution tools. Pasted map URLs run long but never this long.
	MaxReferenceLength = 2048

	// DefaultEncodeDigits is the plus code precision used when the caller
	// does not ask for one. Eleven digits is a cell of roughly 3 meters,
	// enough to point at a gate rather than a street.
	DefaultEncodeDigits = 11
)
