package canonical

import (
	"reflect"
	"strconv"
)

// Fields represents the logical content of a block that is covered by
// its hash.
type Fields struct {
	Index     uint64
	TimeStamp uint64
	Payload   any
	PrevHash  string
	Nonce     uint64
}

// EncodeBlock returns the canonical encoding of the block fields.
func EncodeBlock(f Fields) ([]byte, error) {
	t, err := NewTemplate(f)
	if err != nil {
		return nil, err
	}

	return t.WithNonce(f.Nonce), nil
}

// =============================================================================

// Template holds a pre-encoded block with a hole where the nonce goes. The
// nonce is the only field that changes while mining, so the payload is
// encoded once and not on every attempt.
type Template struct {
	prefix []byte
	suffix []byte
}

// NewTemplate encodes every field except the nonce.
func NewTemplate(f Fields) (Template, error) {
	var payload encoder
	if err := payload.value("payload", reflect.ValueOf(f.Payload)); err != nil {
		return Template{}, err
	}

	var prev encoder
	if err := prev.string("previous_hash", f.PrevHash); err != nil {
		return Template{}, err
	}

	prefix := []byte(`{"index":`)
	prefix = strconv.AppendUint(prefix, f.Index, 10)
	prefix = append(prefix, `,"nonce":`...)

	suffix := []byte(`,"payload":`)
	suffix = append(suffix, payload.buf.Bytes()...)
	suffix = append(suffix, `,"previous_hash":`...)
	suffix = append(suffix, prev.buf.Bytes()...)
	suffix = append(suffix, `,"timestamp":`...)
	suffix = strconv.AppendUint(suffix, f.TimeStamp, 10)
	suffix = append(suffix, '}')

	t := Template{
		prefix: prefix,
		suffix: suffix,
	}

	return t, nil
}

// WithNonce returns the complete block encoding for the specified nonce.
func (t Template) WithNonce(nonce uint64) []byte {
	return t.AppendNonce(make([]byte, 0, len(t.prefix)+20+len(t.suffix)), nonce)
}

// AppendNonce appends the complete block encoding for the specified nonce to
// dst and returns the extended buffer.
func (t Template) AppendNonce(dst []byte, nonce uint64) []byte {
	dst = append(dst, t.prefix...)
	dst = strconv.AppendUint(dst, nonce, 10)
	dst = append(dst, t.suffix...)

	return dst
}
