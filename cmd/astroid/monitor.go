package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/w1xm/astroid_interface/internal/server"
	"github.com/w1xm/astroid_interface/mount"
	"github.com/w1xm/astroid_interface/sky"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Watch and steer a running server from the terminal",
	Long: `Show live mount status from a running server.

Keys:
  arrows  move west/east/north/south at the current motion rate
  space   stop manual motion
  x       abort everything
  q       quit`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}

// Messages
type statusMsg server.Status
type connLostMsg struct{ err error }

type monitorModel struct {
	url     string
	send    func(server.Command) error
	status  *server.Status
	updated time.Time
	lastErr error
	lost    bool
}

func (m monitorModel) Init() tea.Cmd {
	return nil
}

var manualKeys = map[string]server.Command{
	"left":  {Command: "set_manual_motion", Axis: "RA", Direction: "WEST"},
	"right": {Command: "set_manual_motion", Axis: "RA", Direction: "EAST"},
	"up":    {Command: "set_manual_motion", Axis: "DE", Direction: "NORTH"},
	"down":  {Command: "set_manual_motion", Axis: "DE", Direction: "SOUTH"},
}

func (m monitorModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		key := msg.String()
		switch key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "x":
			m.lastErr = m.send(server.Command{Command: "abort"})
		case " ", "space":
			m.lastErr = m.send(server.Command{Command: "set_manual_motion", Axis: "RA", Direction: "NONE"})
			if m.lastErr == nil {
				m.lastErr = m.send(server.Command{Command: "set_manual_motion", Axis: "DE", Direction: "NONE"})
			}
		default:
			if c, ok := manualKeys[key]; ok {
				m.lastErr = m.send(c)
			}
		}
	case statusMsg:
		s := server.Status(msg)
		m.status = &s
		m.updated = time.Now()
	case connLostMsg:
		m.lost = true
		m.lastErr = msg.err
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("12")).
			Background(lipgloss.Color("235")).
			Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Width(12)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

func row(label, value string) string {
	return labelStyle.Render(label) + valueStyle.Render(value) + "\n"
}

func (m monitorModel) View() string {
	var s strings.Builder
	s.WriteString(titleStyle.Render("astroid "+m.url) + "\n\n")
	if m.status == nil {
		s.WriteString("waiting for status...\n")
	} else {
		st := m.status
		var b strings.Builder
		b.WriteString(row("RA", sky.Sexagesimal(st.RA)))
		b.WriteString(row("DE", sky.Sexagesimal(st.DE)))
		b.WriteString(row("Az / Alt", fmt.Sprintf("%.2f / %.2f", st.Az, st.Alt)))
		b.WriteString(row("LST", sky.Sexagesimal(st.LST)))
		b.WriteString(row("Pier side", st.PierSide.String()))
		b.WriteString(row("Mode", st.Mode.String()))
		if st.Goto.Active {
			b.WriteString(row("Target", sky.Sexagesimal(st.Goto.RA)+" "+sky.Sexagesimal(st.Goto.DE)))
		}
		b.WriteString(row("Rate", fmt.Sprintf("%.1f'/s", st.MotionRate)))
		b.WriteString(row("Speed", fmt.Sprintf("%g / %g", st.Command.SpeedRA, st.Command.SpeedDE)))
		if st.Link == mount.LinkOK {
			b.WriteString(row("Link", st.Link.String()))
		} else {
			b.WriteString(labelStyle.Render("Link") + alertStyle.Render(st.Link.String()) + "\n")
		}
		if pb := st.Powerbox; pb != nil {
			b.WriteString(row("Motors", onOff(pb.MotorPower)))
			for i, h := range pb.Heaters {
				b.WriteString(row(fmt.Sprintf("Heater %d", i), onOff(h)))
			}
		}
		s.WriteString(boxStyle.Render(strings.TrimSuffix(b.String(), "\n")) + "\n")
	}
	if m.lost {
		s.WriteString(alertStyle.Render("connection lost") + "\n")
	}
	if m.lastErr != nil {
		s.WriteString(alertStyle.Render(m.lastErr.Error()) + "\n")
	}
	s.WriteString(helpStyle.Render("arrows: move  space: stop  x: abort  q: quit") + "\n")
	return s.String()
}

func onOff(b bool) string {
	if b {
		return "ON"
	}
	return "off"
}

func runMonitor(cmd *cobra.Command, args []string) error {
	conn, _, err := websocket.DefaultDialer.DialContext(cmd.Context(), statusURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	m := monitorModel{
		url:  statusURL,
		send: func(c server.Command) error { return conn.WriteJSON(c) },
	}
	p := tea.NewProgram(m, tea.WithAltScreen())
	go func() {
		for {
			var status server.Status
			if err := conn.ReadJSON(&status); err != nil {
				p.Send(connLostMsg{err})
				return
			}
			p.Send(statusMsg(status))
		}
	}()
	_, err = p.Run()
	return err
}
