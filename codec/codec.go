// Package codec provides pluggable (de)serialization of cached values.
// The stored representation is opaque to cachefill; a provider only ever
// sees the bytes a codec produced.
package codec

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}
