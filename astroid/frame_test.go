package astroid

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncodeCommand(t *testing.T) {
	for _, test := range []struct {
		cmd  Command
		want []byte
	}{
		{Command{}, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0}},
		{Command{SpeedRA: 1}, []byte{0x3F, 0x80, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0xBF}},
		{Command{SpeedDE: -1}, []byte{0x00, 0x00, 0x00, 0x00, 0xBF, 0x80, 0x00, 0x00, 0x3F}},
		{Command{SpeedRA: 240, SpeedDE: 24}, []byte{0x43, 0x70, 0x00, 0x00, 0x41, 0xC0, 0x00, 0x00, 0xB4}},
	} {
		got := EncodeCommand(test.cmd)
		if diff := cmp.Diff(got, test.want); diff != "" {
			t.Errorf("EncodeCommand(%+v): got(-)/want(+):\n%s", test.cmd, diff)
		}
	}
}

func TestCommandRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 1000; i++ {
		want := Command{
			SpeedRA: math.Float32frombits(rng.Uint32()),
			SpeedDE: math.Float32frombits(rng.Uint32()),
		}
		if math.IsNaN(float64(want.SpeedRA)) || math.IsNaN(float64(want.SpeedDE)) {
			continue
		}
		got, err := DecodeCommand(EncodeCommand(want))
		if err != nil {
			t.Fatalf("DecodeCommand(EncodeCommand(%+v)): %v", want, err)
		}
		if math.Float32bits(got.SpeedRA) != math.Float32bits(want.SpeedRA) ||
			math.Float32bits(got.SpeedDE) != math.Float32bits(want.SpeedDE) {
			t.Fatalf("round trip: got %+v, want %+v", got, want)
		}
	}
}

func TestStatusRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 1000; i++ {
		want := Status{
			DeviceClock:     rng.Uint32(),
			StepRA:          int32(rng.Uint32()),
			StepDE:          int32(rng.Uint32()),
			MicrostepRA:     rng.Float32() * MicrostepsPerStep,
			MicrostepDE:     rng.Float32() * MicrostepsPerStep,
			MeasuredSpeedRA: (rng.Float32() - 0.5) * 480,
			MeasuredSpeedDE: (rng.Float32() - 0.5) * 480,
			ServoTicks:      int32(rng.Uint32()),
		}
		got, err := DecodeStatus(EncodeStatus(want))
		if err != nil {
			t.Fatalf("DecodeStatus(EncodeStatus(%+v)): %v", want, err)
		}
		if diff := cmp.Diff(got, want); diff != "" {
			t.Fatalf("round trip: got(-)/want(+):\n%s", diff)
		}
	}
}

func TestDecodeStatusLayout(t *testing.T) {
	frame := []byte{
		0x00, 0x00, 0x03, 0xE8, // clock 1000
		0xFF, 0xFF, 0xFF, 0xFE, // step RA -2
		0x00, 0x00, 0x01, 0x00, // step DE 256
		0x43, 0x80, 0x00, 0x00, // microstep RA 256
		0x00, 0x00, 0x00, 0x00, // microstep DE 0
		0x3F, 0x80, 0x00, 0x00, // speed RA 1
		0xC3, 0x70, 0x00, 0x00, // speed DE -240
		0x00, 0x00, 0x00, 0x07, // servo ticks 7
		0,
	}
	var sum byte
	for _, b := range frame[:32] {
		sum += b
	}
	frame[32] = sum
	got, err := DecodeStatus(frame)
	if err != nil {
		t.Fatal(err)
	}
	want := Status{
		DeviceClock:     1000,
		StepRA:          -2,
		StepDE:          256,
		MicrostepRA:     256,
		MeasuredSpeedRA: 1,
		MeasuredSpeedDE: -240,
		ServoTicks:      7,
	}
	if diff := cmp.Diff(got, want); diff != "" {
		t.Errorf("DecodeStatus: got(-)/want(+):\n%s", diff)
	}
}

func TestChecksumTamper(t *testing.T) {
	frames := map[string][]byte{
		"command": EncodeCommand(Command{SpeedRA: 12.5, SpeedDE: -3}),
		"status":  EncodeStatus(Status{DeviceClock: 123456, StepRA: 42, StepDE: -42, MicrostepRA: 512, ServoTicks: 9}),
	}
	for name, frame := range frames {
		for i := range frame {
			for _, flip := range []byte{0x01, 0x80, 0xFF} {
				tampered := append([]byte(nil), frame...)
				tampered[i] ^= flip
				var err error
				if name == "command" {
					_, err = DecodeCommand(tampered)
				} else {
					_, err = DecodeStatus(tampered)
				}
				var cerr *ChecksumError
				if !errors.As(err, &cerr) {
					t.Errorf("%s: byte %d ^ 0x%02X: got %v, want ChecksumError", name, i, flip, err)
				}
			}
		}
	}
}

func TestFrameSize(t *testing.T) {
	for _, n := range []int{0, 8, 10, 32, 34} {
		if _, err := DecodeCommand(make([]byte, n)); n != CommandSize && !errors.Is(err, ErrFrameSize) {
			t.Errorf("DecodeCommand(%d bytes): got %v, want ErrFrameSize", n, err)
		}
		if _, err := DecodeStatus(make([]byte, n)); !errors.Is(err, ErrFrameSize) {
			t.Errorf("DecodeStatus(%d bytes): got %v, want ErrFrameSize", n, err)
		}
	}
}
