package frame

// Message is an inbound MESSAGE frame with typed access to its routing headers.
type Message struct {
	*Frame
}

// NewMessage wraps f, which is expected to be a MESSAGE frame.
func NewMessage(f *Frame) Message {
	return Message{Frame: f}
}

func (m Message) MessageID() (string, error) {
	return m.RequiredHeader(HdrMessageId)
}

func (m Message) Destination() (string, error) {
	return m.RequiredHeader(HdrDestination)
}

func (m Message) SubscriptionID() (string, error) {
	return m.RequiredHeader(HdrSubscription)
}

// ErrorFrame is an ERROR frame, either received from the broker or
// synthesized locally to describe a transport failure.
type ErrorFrame struct {
	*Frame
	synthesized bool
}

// NewErrorFrame builds an ERROR frame. When wire is nil the frame is
// synthesized and carries only message. Otherwise it copies the broker's
// headers and body, and a non-empty message overrides the message header.
func NewErrorFrame(message string, wire *Frame) ErrorFrame {
	ef := ErrorFrame{synthesized: wire == nil}
	if wire != nil {
		ef.Frame = New(ERROR, wire.Header, wire.Body)
	} else {
		ef.Frame = New(ERROR, nil, "")
	}
	if message != "" {
		ef.SetHeader(HdrMessage, message)
	}
	return ef
}

// ErrorMessage returns the short human-readable description, if any.
func (e ErrorFrame) ErrorMessage() string {
	return e.Header.Value(HdrMessage)
}

// ErrorDetail returns the frame body, if any.
func (e ErrorFrame) ErrorDetail() string {
	return e.Body
}

// Synthesized reports whether the frame was created locally rather than
// received on the wire.
func (e ErrorFrame) Synthesized() bool {
	return e.synthesized
}
