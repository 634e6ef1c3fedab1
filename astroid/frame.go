package astroid

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	// CommandSize is the length of a host->device frame.
	CommandSize = 9
	// StatusSize is the length of a device->host frame.
	StatusSize = 33

	// MicrostepsPerStep is the resolution of the fractional step accumulators.
	MicrostepsPerStep = 1024
)

// Command holds the requested axis speeds, in multiples of the sidereal rate.
// The sign gives the direction of rotation.
type Command struct {
	SpeedRA float32
	SpeedDE float32
}

// Status is a telemetry report from the motion controller.
type Status struct {
	// DeviceClock is the controller's millisecond counter.
	DeviceClock uint32
	// StepRA and StepDE count whole motor steps since the controller booted.
	StepRA int32
	StepDE int32
	// MicrostepRA and MicrostepDE are the fractional step accumulators, in [0,1024).
	MicrostepRA float32
	MicrostepDE float32
	// MeasuredSpeedRA and MeasuredSpeedDE are the speeds the controller is running at.
	MeasuredSpeedRA float32
	MeasuredSpeedDE float32
	ServoTicks      int32
}

var ErrFrameSize = errors.New("astroid: wrong frame size")

// ChecksumError reports a frame whose trailer does not match its contents.
type ChecksumError struct {
	Want, Got byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("astroid: checksum mismatch: computed 0x%02X, frame has 0x%02X", e.Want, e.Got)
}

// checksum is the low byte of the sum of all bytes in data.
func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

func verify(frame []byte, size int) error {
	if len(frame) != size {
		return fmt.Errorf("%w: got %d bytes, want %d", ErrFrameSize, len(frame), size)
	}
	want := checksum(frame[:size-1])
	if got := frame[size-1]; got != want {
		return &ChecksumError{Want: want, Got: got}
	}
	return nil
}

// EncodeCommand lays out c as two big-endian float32 values followed by the checksum.
func EncodeCommand(c Command) []byte {
	frame := make([]byte, CommandSize)
	binary.BigEndian.PutUint32(frame[0:], math.Float32bits(c.SpeedRA))
	binary.BigEndian.PutUint32(frame[4:], math.Float32bits(c.SpeedDE))
	frame[8] = checksum(frame[:8])
	return frame
}

// DecodeCommand is the inverse of EncodeCommand.
func DecodeCommand(frame []byte) (Command, error) {
	if err := verify(frame, CommandSize); err != nil {
		return Command{}, err
	}
	return Command{
		SpeedRA: math.Float32frombits(binary.BigEndian.Uint32(frame[0:])),
		SpeedDE: math.Float32frombits(binary.BigEndian.Uint32(frame[4:])),
	}, nil
}

// EncodeStatus builds a telemetry frame, as sent by the controller.
func EncodeStatus(s Status) []byte {
	frame := make([]byte, StatusSize)
	be := binary.BigEndian
	be.PutUint32(frame[0:], s.DeviceClock)
	be.PutUint32(frame[4:], uint32(s.StepRA))
	be.PutUint32(frame[8:], uint32(s.StepDE))
	be.PutUint32(frame[12:], math.Float32bits(s.MicrostepRA))
	be.PutUint32(frame[16:], math.Float32bits(s.MicrostepDE))
	be.PutUint32(frame[20:], math.Float32bits(s.MeasuredSpeedRA))
	be.PutUint32(frame[24:], math.Float32bits(s.MeasuredSpeedDE))
	be.PutUint32(frame[28:], uint32(s.ServoTicks))
	frame[32] = checksum(frame[:32])
	return frame
}

// DecodeStatus parses a telemetry frame. Nothing is returned unless the
// checksum matches.
func DecodeStatus(frame []byte) (Status, error) {
	if err := verify(frame, StatusSize); err != nil {
		return Status{}, err
	}
	be := binary.BigEndian
	return Status{
		DeviceClock:     be.Uint32(frame[0:]),
		StepRA:          int32(be.Uint32(frame[4:])),
		StepDE:          int32(be.Uint32(frame[8:])),
		MicrostepRA:     math.Float32frombits(be.Uint32(frame[12:])),
		MicrostepDE:     math.Float32frombits(be.Uint32(frame[16:])),
		MeasuredSpeedRA: math.Float32frombits(be.Uint32(frame[20:])),
		MeasuredSpeedDE: math.Float32frombits(be.Uint32(frame[24:])),
		ServoTicks:      int32(be.Uint32(frame[28:])),
	}, nil
}
