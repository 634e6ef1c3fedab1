package simulator

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/w1xm/astroid_interface/astroid"
	"golang.org/x/sync/errgroup"
)

// Emulates the controller firmware: the commanded speeds are integrated into
// a microstep accumulator on a fast tick, and status is reported on a slow one.

const (
	// Steps per second at a commanded speed of 1.
	siderealRate = 86400. / 86164. / 4.
	// Discrete simulation step size
	stepSize = 2 * time.Millisecond
	// Interval between status reports
	statusInterval = 200 * time.Millisecond
)

type Simulator struct {
	conn io.ReadWriteCloser

	mu      sync.Mutex
	status  astroid.Status
	command astroid.Command
}

// New returns a simulator and the controller end of its connection.
func New() (*Simulator, net.Conn) {
	a, b := net.Pipe()
	return Attach(a), b
}

// Attach runs a simulator on an existing connection, such as an accepted TCP socket.
func Attach(conn io.ReadWriteCloser) *Simulator {
	// The firmware starts out tracking.
	return &Simulator{
		conn:    conn,
		command: astroid.Command{SpeedRA: 1},
	}
}

func (s *Simulator) Run(ctx context.Context) error {
	defer s.conn.Close()
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t := time.NewTicker(stepSize)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			s.step(stepSize)
		}
	})
	g.Go(func() error {
		t := time.NewTicker(statusInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
			}
			if err := s.sendStatus(); err != nil {
				return fmt.Errorf("sending status: %w", err)
			}
		}
	})
	g.Go(func() error {
		// Unblock the reader on shutdown.
		<-ctx.Done()
		return s.conn.Close()
	})
	g.Go(s.reader)
	return g.Wait()
}

func (s *Simulator) reader() error {
	r := bufio.NewReader(s.conn)
	frame := make([]byte, astroid.CommandSize)
	for {
		if _, err := io.ReadFull(r, frame); err != nil {
			return fmt.Errorf("reading port: %w", err)
		}
		cmd, err := astroid.DecodeCommand(frame)
		if err != nil {
			log.Printf("srv->sim: %v", err)
			continue
		}
		log.Debugf("srv->sim: ra=%g de=%g", cmd.SpeedRA, cmd.SpeedDE)
		s.mu.Lock()
		s.command = cmd
		s.mu.Unlock()
	}
}

// integrate advances one axis by dt at the given commanded speed.
func integrate(step *int32, ustep *float32, speed float32, dt time.Duration) {
	*ustep += speed * siderealRate * float32(dt.Seconds()) * astroid.MicrostepsPerStep
	for *ustep >= astroid.MicrostepsPerStep {
		*ustep -= astroid.MicrostepsPerStep
		*step++
	}
	for *ustep < 0 {
		*ustep += astroid.MicrostepsPerStep
		*step--
	}
}

func (s *Simulator) step(dt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	integrate(&s.status.StepRA, &s.status.MicrostepRA, s.command.SpeedRA, dt)
	integrate(&s.status.StepDE, &s.status.MicrostepDE, s.command.SpeedDE, dt)
	s.status.MeasuredSpeedRA = s.command.SpeedRA
	s.status.MeasuredSpeedDE = s.command.SpeedDE
	s.status.DeviceClock += uint32(dt / time.Millisecond)
}

// Status returns the current simulated controller state.
func (s *Simulator) Status() astroid.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Command returns the last command received.
func (s *Simulator) Command() astroid.Command {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.command
}

func (s *Simulator) sendStatus() error {
	// Don't hold the lock while writing; a pipe blocks until the other end reads.
	status := s.Status()
	_, err := s.conn.Write(astroid.EncodeStatus(status))
	return err
}
