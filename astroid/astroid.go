package astroid

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tarm/serial"
	"golang.org/x/sync/errgroup"
)

type StatusCallback func(status Status)

// ConnectCallback is called each time a new connection to the controller
// opens, before its first status frame is delivered.
type ConnectCallback func()

var ErrNotConnected = errors.New("astroid: not connected")

// TransportError reports a failure to talk to the controller.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("astroid: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Device is a connection to an Astroid motion controller.
type Device struct {
	statusCallback StatusCallback

	mu              sync.Mutex
	conn            io.ReadWriteCloser
	connectCallback ConnectCallback

	// badFrames counts frames dropped for a bad checksum.
	badFrames atomic.Int64
}

// New returns a Device that is not yet attached to a transport; see Run.
func New(statusCallback StatusCallback) *Device {
	return &Device{statusCallback: statusCallback}
}

// OnConnect sets the function called whenever a new connection opens.
func (d *Device) OnConnect(cb ConnectCallback) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.connectCallback = cb
}

// Run drives an already open connection until it fails or ctx is canceled.
func (d *Device) Run(ctx context.Context, conn io.ReadWriteCloser) error {
	return d.watch(ctx, conn)
}

type dialFunc func(ctx context.Context) (io.ReadWriteCloser, error)

// Connect opens the controller's serial port, reopening it whenever it goes away.
func Connect(ctx context.Context, port string, baud int, statusCallback StatusCallback) (*Device, error) {
	if port == "" {
		return nil, errors.New("astroid: no serial port given")
	}
	d := &Device{statusCallback: statusCallback}
	go d.reconnectLoop(ctx, port, func(context.Context) (io.ReadWriteCloser, error) {
		return serial.OpenPort(&serial.Config{Name: port, Baud: baud})
	})
	return d, nil
}

// ConnectTCP connects to a controller (usually the simulator) over TCP.
func ConnectTCP(ctx context.Context, addr string, statusCallback StatusCallback) (*Device, error) {
	if addr == "" {
		return nil, errors.New("astroid: no address given")
	}
	d := &Device{statusCallback: statusCallback}
	go d.reconnectLoop(ctx, addr, func(ctx context.Context) (io.ReadWriteCloser, error) {
		dialer := &net.Dialer{
			Timeout: time.Second,
		}
		return dialer.DialContext(ctx, "tcp", addr)
	})
	return d, nil
}

func (d *Device) reconnectLoop(ctx context.Context, name string, dial dialFunc) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(1 * time.Second):
		}
		conn, err := dial(ctx)
		if err != nil {
			log.Printf("opening %q: %v", name, err)
			continue
		}
		log.Printf("opened %q", name)
		if err := d.watch(ctx, conn); err != nil && ctx.Err() == nil {
			log.Printf("reading %q: %v", name, err)
		}
	}
}

// watch reads telemetry from conn until it fails or ctx is canceled.
func (d *Device) watch(ctx context.Context, conn io.ReadWriteCloser) error {
	d.mu.Lock()
	d.conn = conn
	connected := d.connectCallback
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.conn = nil
		d.mu.Unlock()
	}()

	if connected != nil {
		connected()
	}

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		// Close the connection to unblock the reader.
		select {
		case <-ctx.Done():
		case <-done:
		}
		return conn.Close()
	})
	g.Go(func() error {
		defer close(done)
		return d.readFrames(bufio.NewReader(conn))
	})
	return g.Wait()
}

// readFrames decodes status frames from r. Frames carry no delimiter, so after
// a checksum failure the window slides forward one byte at a time until
// it lines up with a valid frame again.
func (d *Device) readFrames(r io.ByteReader) error {
	frame := make([]byte, 0, StatusSize)
	for {
		for len(frame) < StatusSize {
			b, err := r.ReadByte()
			if err != nil {
				return err
			}
			frame = append(frame, b)
		}
		status, err := DecodeStatus(frame)
		if err != nil {
			d.badFrames.Add(1)
			log.WithError(err).Debug("dropping telemetry byte")
			frame = append(frame[:0], frame[1:]...)
			continue
		}
		frame = frame[:0]
		if d.statusCallback != nil {
			d.statusCallback(status)
		}
	}
}

// BadFrames returns the number of telemetry frames that failed validation.
func (d *Device) BadFrames() int64 {
	return d.badFrames.Load()
}

// Connected reports whether the transport is currently open.
func (d *Device) Connected() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conn != nil
}

// Send writes a command frame. There is no acknowledgement or retry.
func (d *Device) Send(c Command) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.conn == nil {
		return &TransportError{Op: "write", Err: ErrNotConnected}
	}
	log.WithFields(log.Fields{"ra": c.SpeedRA, "de": c.SpeedDE}).Debug("sending command")
	if _, err := d.conn.Write(EncodeCommand(c)); err != nil {
		return &TransportError{Op: "write", Err: err}
	}
	return nil
}
