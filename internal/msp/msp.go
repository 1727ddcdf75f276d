// Package msp implements the minimal MultiWii-style serial protocol spoken
// to the ground-control link: request parsing and response serialization
// for the receiver-stick, attitude and motor-override messages.
//
// Frame layout: "$M<" or "$M>", payload size, message type, payload,
// XOR checksum over size, type and payload.
package msp

import (
	"encoding/binary"
	"errors"
)

// Message types.
const (
	TypeReceiverSticks = 121 // six fixed-point floats: throttle, roll, pitch, yaw, aux1, aux2
	TypeAttitude       = 122 // three fixed-point floats: phi, theta, psi
	TypeSetMotor       = 215 // two bytes: motor index, percent
)

const maxPayload = 64

var ErrShortPayload = errors.New("msp: short payload")

// encodeFixed packs a float into the wire fixed-point representation,
// offset so the usable range [-2,+2) stays positive.
func encodeFixed(v float64) uint32 {
	return uint32(1000 * (v + 2))
}

// DecodeFixed unpacks a wire fixed-point value.
func DecodeFixed(u uint32) float64 {
	return float64(u)/1000 - 2
}

// EncodeFloats builds a complete "$M>" response frame carrying the given
// values as fixed-point floats.
func EncodeFloats(msgType byte, values []float64) []byte {
	size := byte(4 * len(values))

	buf := make([]byte, 0, 6+int(size))
	buf = append(buf, '$', 'M', '>', size, msgType)
	crc := size ^ msgType

	for _, v := range values {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], encodeFixed(v))
		for _, octet := range b {
			crc ^= octet
		}
		buf = append(buf, b[:]...)
	}

	return append(buf, crc)
}

// DecodeFloats unpacks the fixed-point payload of a response frame.
func DecodeFloats(payload []byte) ([]float64, error) {
	if len(payload)%4 != 0 {
		return nil, ErrShortPayload
	}

	values := make([]float64, 0, len(payload)/4)
	for i := 0; i < len(payload); i += 4 {
		values = append(values, DecodeFixed(binary.LittleEndian.Uint32(payload[i:])))
	}
	return values, nil
}

// SetMotor is the decoded motor-override command: 1-based motor index and
// percent throttle.
type SetMotor struct {
	Index   byte
	Percent byte
}

// DecodeSetMotor unpacks a TypeSetMotor payload.
func DecodeSetMotor(payload []byte) (SetMotor, error) {
	if len(payload) < 2 {
		return SetMotor{}, ErrShortPayload
	}
	return SetMotor{Index: payload[0], Percent: payload[1]}, nil
}
