package domain

// Compressor codecs a snapshot payload before it hits blob storage. Checksums
// are computed over the compressed bytes, so Compress must be deterministic
// for a given input.
type Compressor interface {
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}
