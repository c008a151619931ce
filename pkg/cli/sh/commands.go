package sh

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/fable.go/pkg/bridge/comm/mqtt"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	"github.com/robotalks/fable.go/pkg/module"
	"github.com/robotalks/fable.go/pkg/runtime"
)

var commands = []*ishell.Cmd{
	&DiscoverCmd,
	&ConnectCmd,
	&LocalCmd,
	&DisconnectCmd,
	&ListCmd,
	&PosCmd,
	&SpeedCmd,
	&TorqueCmd,
	&ReadCmd,
	&TerminateCmd,
	&SnapshotCmd,
	&StatsCmd,
	&EmotionCmd,
	&LEDCmd,
	&BuzzerCmd,
}

// AddCmds is used by other commands providers during init func.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// ParseActuate parses SERIAL AXIS VALUE.
func ParseActuate(args []string) (serial, axis string, val float64, err error) {
	if len(args) < 3 {
		return "", "", 0, fmt.Errorf("SERIAL AXIS VALUE required")
	}
	if val, err = strconv.ParseFloat(args[2], 64); err != nil {
		return "", "", 0, fmt.Errorf("invalid VALUE: %w", err)
	}
	return args[0], args[1], val, nil
}

// ParseRGB parses R G B in 0-255.
func ParseRGB(args []string) (rgb [3]byte, err error) {
	if len(args) < 3 {
		return rgb, fmt.Errorf("R G B required")
	}
	for n := range rgb {
		v, err := strconv.ParseUint(args[n], 0, 8)
		if err != nil {
			return rgb, fmt.Errorf("invalid color %q: %w", args[n], err)
		}
		rgb[n] = byte(v)
	}
	return rgb, nil
}

func actuateCmd(name, help string, build func(serial, axis string, val float64) msgs.Message) ishell.Cmd {
	return ishell.Cmd{
		Name: name,
		Help: help,
		Func: MustBeConnected(func(c *ishell.Context) {
			serial, axis, val, err := ParseActuate(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			DoCommand(c, build(serial, axis, val))
		}),
	}
}

func moduleOf(c *ishell.Context, r *runtime.Runtime) (*module.Module, bool) {
	if len(c.Args) < 1 {
		c.Err(fmt.Errorf("SERIAL required"))
		return nil, false
	}
	m, err := r.Module(c.Args[0])
	if err != nil {
		c.Err(err)
		return nil, false
	}
	return m, true
}

func formatValue(v module.Value) string {
	if v.Bytes != nil {
		return strconv.Quote(string(v.Bytes))
	}
	return strconv.Itoa(v.Int)
}

var (
	// DiscoverCmd discovers hosts.
	DiscoverCmd = ishell.Cmd{
		Name:    "discover",
		Aliases: []string{"hosts"},
		Help:    "",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			infoList, err := s.Discover(context.Background())
			if err != nil {
				c.Err(err)
				return
			}
			if s.OutputJSON {
				if len(infoList) == 0 {
					infoList = []mqtt.HostInfo{}
				}
				out, err := json.Marshal(infoList)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			if len(infoList) == 0 {
				c.Println("No hosts found")
				return
			}
			for _, info := range infoList {
				if info.Meta.Description != "" {
					c.Printf("%s: %s\n", info.HostID, info.Meta.Description)
				} else {
					c.Println(info.HostID)
				}
			}
		},
	}

	// ConnectCmd connects a host.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[HOST]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			var hostID string
			if len(c.Args) > 0 {
				hostID = c.Args[0]
			} else {
				infoList, err := s.Discover(context.Background())
				if err != nil {
					c.Err(err)
					return
				}
				switch {
				case len(infoList) == 0:
					c.Err(fmt.Errorf("no host discovered"))
					return
				case len(infoList) == 1:
					hostID = infoList[0].HostID
				case !s.Interactive:
					c.Err(fmt.Errorf("more than 1 hosts discovered in non-interactive mode"))
					return
				default:
					items := make([]string, len(infoList))
					for n, info := range infoList {
						items[n] = info.HostID
					}
					hostID = infoList[s.Shell.MultiChoice(items, "Which one to connect?")].HostID
				}
			}
			if err := s.Connect(hostID); err != nil {
				c.Err(err)
			}
		},
	}

	// LocalCmd starts a runtime in the shell.
	LocalCmd = ishell.Cmd{
		Name: "local",
		Help: "",
		Func: func(c *ishell.Context) {
			if err := ShellFrom(c).ConnectLocal(); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd disconnects current connection.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Help:    "",
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// ListCmd lists attached modules.
	ListCmd = ishell.Cmd{
		Name:    "list",
		Aliases: []string{"ls", "l"},
		Help:    "",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			ctx, cancel := context.WithTimeout(s.Conn.Ctx, s.Timeout)
			defer cancel()
			reply, err := s.Conn.Exec.Do(ctx, &msgs.ListModules{})
			if err != nil {
				c.Err(err)
				return
			}
			list, ok := reply.(*msgs.ModuleList)
			if !ok || s.OutputJSON {
				s.Print(c, reply)
				return
			}
			for _, m := range list.Modules {
				c.Printf("%s %-5s rid=%d status=%d quality=%.2f cycles=%d errors=%d",
					m.Serial, m.Type, m.RadioId, m.Status, m.Quality, m.Cycles, m.ErrorCount)
				if m.Locked {
					c.Print(" LOCKED")
				}
				c.Println()
			}
		}),
	}

	// PosCmd sets the position of an axis or a motor.
	PosCmd = actuateCmd("pos", "SERIAL AXIS DEGREES|TICKS", func(serial, axis string, val float64) msgs.Message {
		return &msgs.SetPosition{PbSetPosition: msgs.PbSetPosition{Serial: serial, Axis: axis, Value: val}}
	})

	// SpeedCmd sets the speed of an axis or a motor.
	SpeedCmd = actuateCmd("speed", "SERIAL AXIS VALUE", func(serial, axis string, val float64) msgs.Message {
		return &msgs.SetSpeed{PbSetSpeed: msgs.PbSetSpeed{Serial: serial, Axis: axis, Value: val}}
	})

	// TorqueCmd sets the torque of an axis or a motor.
	TorqueCmd = actuateCmd("torque", "SERIAL AXIS PERCENT", func(serial, axis string, val float64) msgs.Message {
		return &msgs.SetTorque{PbSetTorque: msgs.PbSetTorque{Serial: serial, Axis: axis, Value: val}}
	})

	// ReadCmd reads a fresh field value.
	ReadCmd = ishell.Cmd{
		Name:    "read",
		Aliases: []string{"r"},
		Help:    "SERIAL FIELD",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("SERIAL FIELD required"))
				return
			}
			DoCommand(c, &msgs.ReadField{PbReadField: msgs.PbReadField{Serial: c.Args[0], Field: c.Args[1]}})
		}),
	}

	// TerminateCmd resets a module.
	TerminateCmd = ishell.Cmd{
		Name: "terminate",
		Help: "SERIAL",
		Func: MustBeConnected(func(c *ishell.Context) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("SERIAL required"))
				return
			}
			DoCommand(c, &msgs.Terminate{PbTerminate: msgs.PbTerminate{Serial: c.Args[0]}})
		}),
	}

	// SnapshotCmd prints the register tables of a local module.
	SnapshotCmd = ishell.Cmd{
		Name: "snapshot",
		Help: "SERIAL",
		Func: MustBeLocal(func(c *ishell.Context, r *runtime.Runtime) {
			m, ok := moduleOf(c, r)
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), ShellFrom(c).Timeout)
			defer cancel()
			states, err := m.Snapshot(ctx)
			if err != nil {
				c.Err(err)
				return
			}
			for _, st := range states {
				var synced string
				if !st.LastSync.IsZero() {
					synced = st.LastSync.Format(time.StampMilli)
				}
				c.Printf("%-24s soft=%-8s hard=%-8s %s\n", st.Field.Name, formatValue(st.Soft), formatValue(st.Hard), synced)
			}
		}),
	}

	// StatsCmd prints sync statistics of a local module and the dongle.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Help: "[SERIAL]",
		Func: MustBeLocal(func(c *ishell.Context, r *runtime.Runtime) {
			if len(c.Args) == 0 {
				c.Printf("dongle %s: %s\n", r.Dongle.Device(), r.Dongle.Statistics())
				return
			}
			m, ok := moduleOf(c, r)
			if !ok {
				return
			}
			st := m.Stats()
			c.Printf("cycles=%d ok=%d errors=%d oversize=%d status=%d quality=%.2f\n",
				st.Cycles, st.OKCycles, st.ErrorCount, st.Oversize, st.Status, st.Quality)
			c.Println(st.History)
		}),
	}

	// EmotionCmd changes the expression of a local face.
	EmotionCmd = ishell.Cmd{
		Name: "emotion",
		Help: "SERIAL EMOTION",
		Func: MustBeLocal(func(c *ishell.Context, r *runtime.Runtime) {
			if len(c.Args) < 2 {
				c.Err(fmt.Errorf("SERIAL EMOTION required"))
				return
			}
			face, err := r.Face(c.Args[0])
			if err != nil {
				c.Err(err)
				return
			}
			e, err := module.ParseEmotion(c.Args[1])
			if err != nil {
				c.Err(err)
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), ShellFrom(c).Timeout)
			defer cancel()
			if err := face.SetEmotion(ctx, e); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// LEDCmd sets the dongle LED.
	LEDCmd = ishell.Cmd{
		Name: "led",
		Help: "on|off|R G B",
		Func: MustBeLocal(func(c *ishell.Context, r *runtime.Runtime) {
			var err error
			switch {
			case len(c.Args) == 1 && c.Args[0] == "on":
				err = r.Dongle.SetLED(true)
			case len(c.Args) == 1 && c.Args[0] == "off":
				err = r.Dongle.SetLED(false)
			default:
				var rgb [3]byte
				if rgb, err = ParseRGB(c.Args); err == nil {
					err = r.Dongle.SetRGB(rgb[0], rgb[1], rgb[2])
				}
			}
			if err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}

	// BuzzerCmd sets the dongle buzzer tone, 0 stops it.
	BuzzerCmd = ishell.Cmd{
		Name: "buzzer",
		Help: "TONE",
		Func: MustBeLocal(func(c *ishell.Context, r *runtime.Runtime) {
			if len(c.Args) < 1 {
				c.Err(fmt.Errorf("TONE required"))
				return
			}
			tone, err := strconv.ParseUint(c.Args[0], 0, 16)
			if err != nil {
				c.Err(fmt.Errorf("invalid TONE: %w", err))
				return
			}
			if err := r.Dongle.SetBuzzer(uint16(tone)); err != nil {
				c.Err(err)
				return
			}
			c.Println("OK")
		}),
	}
)
