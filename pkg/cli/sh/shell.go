package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"reflect"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/fable.go/pkg/bridge"
	"github.com/robotalks/fable.go/pkg/bridge/comm/mqtt"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
	"github.com/robotalks/fable.go/pkg/runtime"
)

// Executor executes bridge commands. A CommandErr reply is returned
// as the error.
type Executor interface {
	Do(ctx context.Context, cmd msgs.Message) (msgs.Message, error)
}

// LocalExecutor executes commands against modules in this process.
type LocalExecutor struct {
	Handler *bridge.Handler
}

// Do implements Executor.
func (e *LocalExecutor) Do(ctx context.Context, cmd msgs.Message) (msgs.Message, error) {
	reply := e.Handler.HandleCommand(ctx, cmd)
	if cmdErr, ok := reply.(*msgs.CommandErr); ok {
		return nil, cmdErr
	}
	return reply, nil
}

// Conn is an active connection, either to a local runtime or a remote
// host.
type Conn struct {
	Name   string
	Ctx    context.Context
	Cancel func()
	Exec   Executor
	// Runtime is set on local connections.
	Runtime *runtime.Runtime
}

// Config defines how the shell connects.
type Config struct {
	MQTTBrokerURL string
	HostID        string
	// Local runs the runtime in the shell process.
	Local bool
}

var defaultConfig = Config{
	MQTTBrokerURL: "mqtt://localhost:1883/fable/",
}

func init() {
	if val := os.Getenv("FABLE_MQTT_URL"); val != "" {
		defaultConfig.MQTTBrokerURL = val
	}
	if val := os.Getenv("FABLE_HOST_ID"); val != "" {
		defaultConfig.HostID = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.HostID, "host", defaultConfig.HostID, "Host ID to connect.")
	flag.BoolVar(&defaultConfig.Local, "local", defaultConfig.Local, "Run modules in this process.")
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// Shell provides ishell backed interactive shell.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *Config
	// Runtime configures local connections.
	Runtime *runtime.Config
	Conn    *Conn
}

const (
	shellKey          = "$shell"
	unconnectedPrompt = "[none] > "
	defaultTimeout    = 5 * time.Second
)

var (
	evalOnly   bool
	outputJSON bool

	errNotConnected = errors.New("not connected")
	errNotLocal     = errors.New("only available on local connection")
)

// New creates a new shell.
func New(conf *Config, rtConf *runtime.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     defaultTimeout,

		Shell:   ishell.New(),
		Config:  conf,
		Runtime: rtConf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(unconnectedPrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom gets Shell from ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	return c.Get(shellKey).(*Shell)
}

// MustBeConnected wraps command func requires a connection.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if ShellFrom(c).Conn == nil {
			c.Err(errNotConnected)
			return
		}
		fn(c)
	}
}

// MustBeLocal wraps command func requires a local runtime.
func MustBeLocal(fn func(c *ishell.Context, r *runtime.Runtime)) func(c *ishell.Context) {
	return MustBeConnected(func(c *ishell.Context) {
		r := ShellFrom(c).Conn.Runtime
		if r == nil {
			c.Err(errNotLocal)
			return
		}
		fn(c, r)
	})
}

// DoCommand runs a command and prints the result.
func DoCommand(c *ishell.Context, msg msgs.Message) error {
	s := ShellFrom(c)
	if s.Conn == nil {
		c.Err(errNotConnected)
		return errNotConnected
	}
	ctx, cancel := context.WithTimeout(s.Conn.Ctx, s.Timeout)
	defer cancel()
	reply, err := s.Conn.Exec.Do(ctx, msg)
	if err != nil {
		c.Err(err)
		return err
	}
	return s.Print(c, reply)
}

// Print prints a message.
func (s *Shell) Print(c *ishell.Context, msg msgs.Message) error {
	sm, ok := msg.(msgs.SerializableMessage)
	if !ok {
		return msgs.ErrNotSerializable
	}
	if s.OutputJSON {
		out, err := json.Marshal(sm.Serializable())
		if err != nil {
			c.Err(err)
			return err
		}
		c.Println(string(out))
		return nil
	}
	if _, ok := msg.(*msgs.CommandOK); ok {
		c.Println("OK")
		return nil
	}
	c.Printf("%s %s\n",
		reflect.Indirect(reflect.ValueOf(msg)).Type().Name(),
		sm.Serializable().String())
	return nil
}

// Discover lists hosts registered on the MQTT broker.
func (s *Shell) Discover(ctx context.Context) ([]mqtt.HostInfo, error) {
	connector, err := mqtt.NewConnector(s.Config.MQTTBrokerURL)
	if err != nil {
		return nil, err
	}
	return connector.Discover(ctx)
}

// Connect connects a remote host.
func (s *Shell) Connect(hostID string) error {
	connector, err := mqtt.NewConnector(s.Config.MQTTBrokerURL)
	if err != nil {
		return err
	}
	conn := &Conn{Name: hostID}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	client, err := connector.Connect(conn.Ctx, hostID)
	if err != nil {
		conn.Cancel()
		return err
	}
	conn.Exec = client
	loop := fx.NewLoop()
	loop.Add(client)
	cancel := conn.Cancel
	conn.Cancel = func() {
		cancel()
		client.Queue.Close()
	}
	s.use(conn)
	go loop.Run(conn.Ctx)
	return nil
}

// ConnectLocal starts a runtime in this process.
func (s *Shell) ConnectLocal() error {
	s.Disconnect()
	conf := *s.Runtime
	conf.Modules = append([]runtime.ModuleConfig(nil), s.Runtime.Modules...)
	r, err := conf.NewRuntime()
	if err != nil {
		return err
	}
	conn := &Conn{
		Name:    "local",
		Exec:    &LocalExecutor{Handler: &bridge.Handler{Registry: r}},
		Runtime: r,
	}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.Run(conn.Ctx); err != nil && err != context.Canceled {
			log.Printf("runtime stopped: %v", err)
		}
	}()
	cancel := conn.Cancel
	conn.Cancel = func() {
		cancel()
		<-done
	}
	s.use(conn)
	return nil
}

func (s *Shell) use(conn *Conn) {
	if s.Conn != nil {
		s.Conn.Cancel()
	}
	s.Conn = conn
	s.Shell.SetPrompt(fmt.Sprintf("%s > ", conn.Name))
}

// Disconnect disconnects current connection.
func (s *Shell) Disconnect() {
	if s.Conn != nil {
		s.Conn.Cancel()
		s.Conn = nil
		s.Shell.SetPrompt(unconnectedPrompt)
	}
}

// Run runs the shell.
func (s *Shell) Run(args ...string) {
	switch {
	case s.Config.Local:
		if err := s.ConnectLocal(); err != nil {
			log.Fatalf("start local runtime failed: %v", err)
		}
	case s.Config.HostID != "":
		if s.Interactive {
			s.Shell.Printf("Connecting %s ...\n", s.Config.HostID)
		}
		if err := s.Connect(s.Config.HostID); err != nil {
			log.Fatalf("connect %q failed: %v", s.Config.HostID, err)
		}
	}
	defer s.Disconnect()

	if len(args) > 0 {
		if err := s.Shell.Process(args...); err != nil {
			log.Fatalln(err)
		}
		return
	}
	if s.Interactive {
		s.Shell.Run()
		return
	}
	log.Fatalln("command expected")
}

// Main is a helper to provide a single call in main.
func Main() {
	flag.Parse()
	New(NewConfig(), runtime.NewConfig()).Run(flag.Args()...)
}
