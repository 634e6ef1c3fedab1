package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/w1xm/astroid_interface/mount"
	"github.com/w1xm/astroid_interface/powerbox"
)

type Mount interface {
	Handle(req mount.Request) error
	State() mount.State
}

type Switches interface {
	SetMotorPower(on bool) error
	SetHeater(i int, on bool) error
}

// Status is what clients receive.
type Status struct {
	mount.State
	Powerbox *powerbox.Status `json:",omitempty"`
}

var errNoPowerbox = errors.New("no power box configured")

type Server struct {
	mu       sync.Mutex
	mount    Mount
	switches Switches

	statusMu   sync.RWMutex
	statusCond *sync.Cond
	status     Status
	version    uint64
}

func NewServer() *Server {
	s := &Server{}
	s.statusCond = sync.NewCond(s.statusMu.RLocker())
	return s
}

// Attach sets the mount commands go to, and optionally the power box.
func (s *Server) Attach(m Mount, switches Switches) {
	s.mu.Lock()
	s.mount = m
	s.switches = switches
	s.mu.Unlock()
	s.MountCallback(m.State())
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func (s *Server) Router(staticDir string) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/status", s.StatusHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/command", s.CommandHandler).Methods(http.MethodPost)
	r.HandleFunc("/api/ws", s.StatusSocketHandler)
	if staticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(staticDir)))
	}
	return r
}

func (s *Server) currentStatus() Status {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	return s.status
}

func (s *Server) StatusHandler(w http.ResponseWriter, r *http.Request) {
	status := s.currentStatus()
	w.Header().Set("Content-Type", "application/json")
	data, err := json.Marshal(status)
	if err != nil {
		log.Print(err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write(data)
}

// execute runs one client command.
func (s *Server) execute(msg Command) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch msg.Command {
	case "motor_power":
		if s.switches == nil {
			return errNoPowerbox
		}
		return s.switches.SetMotorPower(msg.On)
	case "heater":
		if s.switches == nil {
			return errNoPowerbox
		}
		return s.switches.SetHeater(msg.Heater, msg.On)
	}
	req, err := DecodeCommand(msg)
	if err != nil {
		return err
	}
	if s.mount == nil {
		return errors.New("no mount attached")
	}
	log.WithField("request", fmt.Sprintf("%#v", req)).Debug("client request")
	return s.mount.Handle(req)
}

type reply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func (s *Server) CommandHandler(w http.ResponseWriter, r *http.Request) {
	var msg Command
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	err := dec.Decode(&msg)
	if err == nil {
		err = s.execute(msg)
	}
	w.Header().Set("Content-Type", "application/json")
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(reply{Error: err.Error()})
		return
	}
	json.NewEncoder(w).Encode(reply{OK: true})
}

func (s *Server) StatusSocketHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println(err)
		return
	}
	defer conn.Close()

	// Read and process incoming messages
	go func() {
		defer cancel()
		for {
			var msg Command
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if err := s.execute(msg); err != nil {
				log.WithError(err).WithField("command", msg.Command).Warn("client command failed")
			}
		}
	}()

	// Wake the status loop when the client goes away.
	go func() {
		<-ctx.Done()
		s.statusMu.Lock()
		s.statusCond.Broadcast()
		s.statusMu.Unlock()
	}()

	send := func(status Status) error {
		data, err := json.Marshal(status)
		if err != nil {
			return err
		}
		return conn.WriteMessage(websocket.TextMessage, data)
	}

	s.statusMu.RLock()
	status, seen := s.status, s.version
	s.statusMu.RUnlock()
	for {
		if err := send(status); err != nil {
			log.Print(err)
			return
		}
		s.statusMu.RLock()
		for s.version == seen && ctx.Err() == nil {
			s.statusCond.Wait()
		}
		status, seen = s.status, s.version
		s.statusMu.RUnlock()
		if ctx.Err() != nil {
			return
		}
	}
}

// update applies f to the status and wakes the websockets if f reports a
// change.
func (s *Server) update(f func(*Status) bool) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if !f(&s.status) {
		return
	}
	s.version++
	s.statusCond.Broadcast()
}

// MountCallback records a mount state update; pass it to mount.New.
// Snapshots older than the current one are ignored.
func (s *Server) MountCallback(state mount.State) {
	s.update(func(status *Status) bool {
		if state.Seq < status.Seq {
			return false
		}
		status.State = state
		return true
	})
}

// PowerboxCallback records a power box status update.
func (s *Server) PowerboxCallback(pb powerbox.Status) {
	s.update(func(status *Status) bool {
		status.Powerbox = &pb
		return true
	})
}
