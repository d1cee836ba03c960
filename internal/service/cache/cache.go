package cache

import "time"

// BytesCache stores marshaled response envelopes with a TTL. The handler
// serves hits verbatim via JSONBlob, so values are opaque bytes here.
type BytesCache interface {
	GetBytes(key string) (b []byte, ok bool, err error)
	SetBytes(key string, value []byte, ttl time.Duration) error
}
