package render

import "github.com/cockroachdb/errors"

// InvalidDimensionsError is returned from resource creation when a requested
// width or height is smaller than a single texel.
var InvalidDimensionsError error = errors.New("image width and height must both be at least 1")

// UnsupportedFormatError is returned from image creation when the device
// cannot create images with the requested format and usage combination.
var UnsupportedFormatError error = errors.New("the device does not support the requested format for the requested usage")

// DimensionsTooLargeError is returned from image creation when the requested
// extent, mip chain, layer count, or sample count exceeds the limits the
// device reports for the format and usage combination.
var DimensionsTooLargeError error = errors.New("image dimensions exceed the limits reported by the device")

// SizeOverflowError is returned when the byte size of a pixel rectangle cannot
// be represented in the platform's address width.
var SizeOverflowError error = errors.New("pixel buffer byte size overflows the platform address width")
