package frame

const (
	HdrAcceptVersion = "accept-version"
	HdrAck           = "ack" // SUBSCRIBE
	HdrContentLength = "content-length"
	HdrContentType   = "content-type"
	HdrDestination   = "destination" // SEND, SUBSCRIBE, MESSAGE
	HdrHeartBeat     = "heart-beat"
	HdrHost          = "host"
	HdrId            = "id" // SUBSCRIBE, UNSUBSCRIBE, ACK, NACK
	HdrLogin         = "login"
	HdrMessage       = "message"
	HdrMessageId     = "message-id" // MESSAGE
	HdrPasscode      = "passcode"
	HdrReceipt       = "receipt"
	HdrReceiptId     = "receipt-id"
	HdrServer        = "server"
	HdrSession       = "session"
	HdrSubscription  = "subscription" // MESSAGE
	HdrTransaction   = "transaction"
	HdrVersion       = "version"
)

// Header is an ordered set of frame headers. Keys are unique and compared
// case-sensitively; iteration follows insertion order, which is also the
// order headers are written on the wire.
//
// The zero value is an empty header ready to use.
type Header struct {
	keys   []string
	values map[string]string
}

// NewHeader returns a header populated from alternating key/value pairs.
// A trailing key without a value is ignored.
func NewHeader(pairs ...string) *Header {
	h := &Header{}
	for i := 0; i+1 < len(pairs); i += 2 {
		h.Set(pairs[i], pairs[i+1])
	}
	return h
}

// Get returns the value stored for key.
func (h *Header) Get(key string) (string, bool) {
	if h == nil || h.values == nil {
		return "", false
	}
	v, ok := h.values[key]
	return v, ok
}

// Value returns the value stored for key, or "" if absent.
func (h *Header) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// Contains reports whether key is present.
func (h *Header) Contains(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set stores value under key. An existing key keeps its position.
func (h *Header) Set(key, value string) {
	if h.values == nil {
		h.values = make(map[string]string, 8)
	}
	if _, ok := h.values[key]; !ok {
		h.keys = append(h.keys, key)
	}
	h.values[key] = value
}

// SetDefault stores value under key only if key is not already present.
// It reports whether the value was stored.
func (h *Header) SetDefault(key, value string) bool {
	if h.Contains(key) {
		return false
	}
	h.Set(key, value)
	return true
}

// Del removes key.
func (h *Header) Del(key string) {
	if !h.Contains(key) {
		return
	}
	delete(h.values, key)
	for i, k := range h.keys {
		if k == key {
			h.keys = append(h.keys[:i], h.keys[i+1:]...)
			break
		}
	}
}

// Len returns the number of headers.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.keys)
}

// Keys returns the header keys in insertion order.
func (h *Header) Keys() []string {
	if h == nil {
		return nil
	}
	keys := make([]string, len(h.keys))
	copy(keys, h.keys)
	return keys
}

// Each calls fn for every header in insertion order.
func (h *Header) Each(fn func(key, value string)) {
	if h == nil {
		return
	}
	for _, k := range h.keys {
		fn(k, h.values[k])
	}
}

// Update copies every header of other into h, overwriting existing values.
func (h *Header) Update(other *Header) {
	other.Each(h.Set)
}

// Clone returns an independent copy. Cloning a nil header yields an empty one.
func (h *Header) Clone() *Header {
	res := &Header{}
	res.Update(h)
	return res
}

// Map returns the headers as a plain map.
func (h *Header) Map() map[string]string {
	m := make(map[string]string, h.Len())
	h.Each(func(k, v string) { m[k] = v })
	return m
}
