package frame

// Assembler deserializes a sequence of transport payloads, carrying an
// unterminated fragment from one payload into the next so that frames split
// across transport messages are reassembled. It is not safe for concurrent use.
type Assembler struct {
	deserializer *Deserializer
	partial      string
}

func NewAssembler(d *Deserializer) *Assembler {
	if d == nil {
		d = NewDeserializer(nil)
	}
	return &Assembler{deserializer: d}
}

// Feed parses payload prefixed by any fragment left over from the previous
// call. A parse error does not affect the other frames of the payload or the
// carried fragment; the good frames are returned along with the error.
func (a *Assembler) Feed(payload any) ([]*Frame, error) {
	text, err := a.deserializer.Decode(payload)
	if err != nil {
		return nil, err
	}

	data := a.partial + text
	a.partial = ""

	buf, err := a.deserializer.DeserializeText(data)
	a.partial = buf.Partial
	return buf.Frames, err
}

// Partial returns the fragment waiting for the next payload.
func (a *Assembler) Partial() string {
	return a.partial
}

// Reset drops any carried fragment.
func (a *Assembler) Reset() {
	a.partial = ""
}
