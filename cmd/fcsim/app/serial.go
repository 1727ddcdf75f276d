package app

import (
	"fmt"

	"go.bug.st/serial"
)

// serialLink adapts a serial port to the non-blocking byte link the control
// core polls. A reader goroutine drains the port into a buffered channel;
// ReadByte never blocks the control loop.
type serialLink struct {
	port serial.Port
	in   chan byte
}

func openSerialLink(portName string, baudRate int) (*serialLink, error) {
	port, err := serial.Open(portName, &serial.Mode{BaudRate: baudRate})
	if err != nil {
		return nil, fmt.Errorf("opening serial port %s: %w", portName, err)
	}

	l := &serialLink{
		port: port,
		in:   make(chan byte, 512),
	}
	go l.readLoop()

	return l, nil
}

func (l *serialLink) readLoop() {
	buf := make([]byte, 64)
	for {
		n, err := l.port.Read(buf)
		if err != nil {
			close(l.in)
			return
		}
		for _, b := range buf[:n] {
			// Drop bytes when the control loop falls behind; the MSP
			// parser resyncs on the next frame marker.
			select {
			case l.in <- b:
			default:
			}
		}
	}
}

func (l *serialLink) ReadByte() (byte, bool) {
	select {
	case b, ok := <-l.in:
		return b, ok
	default:
		return 0, false
	}
}

func (l *serialLink) Write(p []byte) (int, error) {
	return l.port.Write(p)
}

func (l *serialLink) Close() error {
	return l.port.Close()
}
