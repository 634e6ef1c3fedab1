// Package powerbox drives the Modbus relay box that switches the mount's
// motor driver supply and the dew heaters.
package powerbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/w1xm/astroid_interface/internal/modbus"
)

type Status struct {
	MotorPower bool
	Heaters    []bool
	// SupplyOK is the power-good input of the box.
	SupplyOK bool
}

type StatusCallback func(status Status)

type Config struct {
	// Port and BaudRate select an RTU connection, Address a Modbus/TCP one.
	Port     string
	BaudRate int
	Address  string
	SlaveID  byte

	MotorCoil   uint16
	HeaterCoils []uint16
	// SupplyInput is the discrete input wired to the power-good signal.
	SupplyInput  uint16
	PollInterval time.Duration
}

// registers is the part of a Modbus client the box needs.
type registers interface {
	ReadCoils(address, quantity uint16) ([]byte, error)
	ReadDiscreteInputs(address, quantity uint16) ([]byte, error)
	WriteCoil(coil uint16, value bool) error
}

type Powerbox struct {
	cfg            Config
	statusCallback StatusCallback

	mu     sync.Mutex
	client registers
	coils  []bool
	inputs []bool
}

func Connect(ctx context.Context, cfg Config, statusCallback StatusCallback) (*Powerbox, error) {
	if cfg.Port == "" && cfg.Address == "" {
		return nil, fmt.Errorf("powerbox: no port or address given")
	}
	client := &modbus.Client{
		Port:         cfg.Port,
		BaudRate:     cfg.BaudRate,
		Address:      cfg.Address,
		SlaveId:      cfg.SlaveID,
		PollInterval: cfg.PollInterval,
	}
	p := newPowerbox(cfg, client, statusCallback)
	client.Poll = p.pollOnce
	return p, client.Connect(ctx)
}

func newPowerbox(cfg Config, client registers, statusCallback StatusCallback) *Powerbox {
	return &Powerbox{
		cfg:            cfg,
		statusCallback: statusCallback,
		client:         client,
	}
}

// coilCount is the number of coils to read to cover every relay.
func (p *Powerbox) coilCount() uint16 {
	n := p.cfg.MotorCoil + 1
	for _, c := range p.cfg.HeaterCoils {
		if c+1 > n {
			n = c + 1
		}
	}
	return n
}

func (p *Powerbox) pollOnce() error {
	p.mu.Lock()
	coils, err := p.client.ReadCoils(0, p.coilCount())
	if err != nil {
		p.mu.Unlock()
		return err
	}
	inputs, err := p.client.ReadDiscreteInputs(0, p.cfg.SupplyInput+1)
	if err != nil {
		p.mu.Unlock()
		return err
	}
	p.coils = modbus.BytesToBits(coils)
	p.inputs = modbus.BytesToBits(inputs)
	status := p.parseRegisters()
	p.mu.Unlock()

	if p.statusCallback != nil {
		p.statusCallback(status)
	}
	return nil
}

func bit(bits []bool, i uint16) bool {
	return int(i) < len(bits) && bits[i]
}

func (p *Powerbox) parseRegisters() Status {
	status := Status{
		MotorPower: bit(p.coils, p.cfg.MotorCoil),
		SupplyOK:   bit(p.inputs, p.cfg.SupplyInput),
	}
	for _, c := range p.cfg.HeaterCoils {
		status.Heaters = append(status.Heaters, bit(p.coils, c))
	}
	return status
}

func (p *Powerbox) writeCoil(coil uint16, on bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.client.WriteCoil(coil, on); err != nil {
		return fmt.Errorf("powerbox: writing coil %d: %w", coil, err)
	}
	return nil
}

// SetMotorPower switches the supply of the motor drivers.
func (p *Powerbox) SetMotorPower(on bool) error {
	log.WithField("on", on).Info("motor power")
	return p.writeCoil(p.cfg.MotorCoil, on)
}

// SetHeater switches dew heater i, counted in configuration order.
func (p *Powerbox) SetHeater(i int, on bool) error {
	if i < 0 || i >= len(p.cfg.HeaterCoils) {
		return fmt.Errorf("powerbox: no heater %d", i)
	}
	log.WithFields(log.Fields{"heater": i, "on": on}).Info("heater")
	return p.writeCoil(p.cfg.HeaterCoils[i], on)
}

// Heaters returns the number of configured heaters.
func (p *Powerbox) Heaters() int {
	return len(p.cfg.HeaterCoils)
}
