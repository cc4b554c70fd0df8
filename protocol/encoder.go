package protocol

// Encoder builds outbound frames in a fixed transmit buffer and sends them
// over a Link in packet-size chunks.
type Encoder struct {
	link       Link
	packetSize int
	service    func()
	tx         [TxBufferSize]byte
}

// NewEncoder creates an encoder sending packetSize-byte chunks.
func NewEncoder(link Link, packetSize int) *Encoder {
	if packetSize <= 0 {
		packetSize = 16
	}
	return &Encoder{link: link, packetSize: packetSize}
}

// SetServiceCallback sets the function called while the link is busy
func (e *Encoder) SetServiceCallback(fn func()) {
	e.service = fn
}

// PacketSize returns the transport chunk size.
func (e *Encoder) PacketSize() int {
	return e.packetSize
}

// SendPacket sends a text frame. A nil payload omits the RS field; the
// payload is copied up to its first NUL.
func (e *Encoder) SendPacket(tag string, data []byte) {
	e.send(tag, data, false)
}

// SendBinPacket sends a frame whose payload is raw bytes of known length.
func (e *Encoder) SendBinPacket(tag string, data []byte) {
	if len(data) == 0 {
		e.send(tag, nil, false)
		return
	}
	e.send(tag, data, true)
}

// SendAck answers command with an ACK frame "command[,data]" of at most
// MaxAckSize-1 bytes.
func (e *Encoder) SendAck(command string, data []byte) {
	var resp [MaxAckSize]byte
	limit := MaxAckSize - 1
	n := 0
	for i := 0; i < len(command) && command[i] != NUL && n < limit; i++ {
		resp[n] = command[i]
		n++
	}
	if data != nil {
		// The separator is written even at the limit; the terminator slot
		// absorbs it.
		resp[n] = ','
		n++
		for i := 0; i < len(data) && data[i] != NUL && n < limit; i++ {
			resp[n] = data[i]
			n++
		}
	}
	if n > limit {
		n = limit
	}
	e.SendPacket(TagAck, resp[:n])
}

// SendError sends an ERR frame carrying a single code byte.
func (e *Encoder) SendError(code byte) {
	e.SendPacket(TagErr, []byte{code})
}

// Encode writes the frame into the transmit buffer and returns it without
// sending. The result is valid until the next call.
func (e *Encoder) Encode(tag string, data []byte, binary bool) []byte {
	limit := TxBufferSize - TxHeadroom
	i := 0
	e.tx[i] = STX
	i++
	for j := 0; j < len(tag) && tag[j] != NUL && i < limit; j++ {
		e.tx[i] = tag[j]
		i++
	}
	if data != nil {
		e.tx[i] = RS
		i++
		for j := 0; j < len(data) && i < limit; j++ {
			if !binary && data[j] == NUL {
				break
			}
			e.tx[i] = data[j]
			i++
		}
	}
	e.tx[i] = ETX
	i++
	return e.tx[:i]
}

func (e *Encoder) send(tag string, data []byte, binary bool) {
	e.Transmit(e.Encode(tag, data, binary))
}

// Transmit sends frame in packet-size chunks. A frame that is an exact
// multiple of the packet size is followed by a zero-length packet.
func (e *Encoder) Transmit(frame []byte) {
	for len(frame) > 0 {
		n := len(frame)
		if n > e.packetSize {
			n = e.packetSize
		}
		e.transmit(frame[:n])
		frame = frame[n:]
		if n == e.packetSize && len(frame) == 0 {
			e.transmit(frame[:0])
		}
	}
}

func (e *Encoder) transmit(chunk []byte) {
	for !e.link.Transmit(chunk) {
		if e.service != nil {
			e.service()
		}
	}
}
