package icon

import "bytes"

// Magic-byte prefixes for the image formats the pipeline accepts.
var signatures = [][]byte{
	{0x42, 0x4D},             // BMP
	[]byte("GIF87a"),         // GIF
	[]byte("GIF89a"),         // GIF
	{0x00, 0x00, 0x01, 0x00}, // ICO
	{0xFF, 0xD8, 0xFF},       // JPEG
	{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}, // PNG
	{0x49, 0x49, 0x2A, 0x00},                         // TIFF little-endian
	{0x4D, 0x4D, 0x00, 0x2A},                         // TIFF big-endian
}

// ValidImage reports whether data starts with a known image signature.
func ValidImage(data []byte) bool {
	for _, signature := range signatures {
		if bytes.HasPrefix(data, signature) {
			return true
		}
	}

	return false
}
