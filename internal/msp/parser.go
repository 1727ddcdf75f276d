package msp

// Request is one complete, checksum-verified inbound frame.
type Request struct {
	Type    byte
	Payload []byte
}

type parserState int

const (
	stateIdle parserState = iota
	stateM
	stateDirection
	stateSize
	stateType
	statePayload
)

// Parser is a resynchronizing byte-at-a-time frame parser. Both frame
// directions ('<' and '>') are accepted on input: some GCS tools send
// requests with the response marker.
type Parser struct {
	state parserState

	size    byte
	msgType byte
	crc     byte
	index   byte
	payload [maxPayload]byte
}

// Parse consumes one serial byte. It returns a complete request and true
// when the byte closes a frame with a valid checksum; malformed or
// corrupted frames are dropped silently and the parser hunts for the next
// frame marker.
func (p *Parser) Parse(b byte) (Request, bool) {
	switch p.state {
	case stateIdle:
		if b == '$' {
			p.state = stateM
		}

	case stateM:
		if b == 'M' {
			p.state = stateDirection
		} else {
			p.state = stateIdle
		}

	case stateDirection:
		if b == '<' || b == '>' {
			p.state = stateSize
		} else {
			p.state = stateIdle
		}

	case stateSize:
		if int(b) > maxPayload {
			p.state = stateIdle
			break
		}
		p.size = b
		p.crc = b
		p.index = 0
		p.state = stateType

	case stateType:
		p.msgType = b
		p.crc ^= b
		p.state = statePayload

	case statePayload:
		if p.index < p.size {
			p.payload[p.index] = b
			p.index++
			p.crc ^= b
			break
		}

		// Checksum byte.
		p.state = stateIdle
		if b == p.crc {
			payload := make([]byte, p.index)
			copy(payload, p.payload[:p.index])
			return Request{Type: p.msgType, Payload: payload}, true
		}
	}

	return Request{}, false
}
