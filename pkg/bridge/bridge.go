// Package bridge exposes attached modules to remote applications.
// Commands arrive as typed messages over MQTT, websocket or TCP
// streams, module status is published periodically as events.
package bridge

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"
	"github.com/google/uuid"

	"github.com/robotalks/fable.go/pkg/bridge/comm"
	"github.com/robotalks/fable.go/pkg/bridge/comm/mqtt"
	"github.com/robotalks/fable.go/pkg/bridge/comm/stream"
	"github.com/robotalks/fable.go/pkg/bridge/comm/websocket"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
)

// DefaultStatusPeriod is how often module status is published.
const DefaultStatusPeriod = time.Second

// WebsocketPath is where the websocket endpoint is served.
const WebsocketPath = "/ws"

// Config defines the bridge endpoints.
type Config struct {
	HostID string
	// MQTTBrokerURL enables the MQTT endpoint,
	// e.g. mqtt://host:port/topic-prefix/
	MQTTBrokerURL string
	// WebsocketAddr enables the websocket endpoint, e.g. :8090.
	WebsocketAddr string
	// StreamAddr enables the TCP endpoint with length prefixed packets.
	StreamAddr   string
	StatusPeriod time.Duration
	Description  string
}

var defaultConfig = Config{
	StatusPeriod: DefaultStatusPeriod,
	Description:  "Fable host",
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
	flag.StringVar(&defaultConfig.HostID, "host-id", defaultConfig.HostID, "Host ID, machine ID if empty.")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL.")
	flag.StringVar(&defaultConfig.WebsocketAddr, "ws", defaultConfig.WebsocketAddr, "Websocket listen address.")
	flag.StringVar(&defaultConfig.StreamAddr, "tcp", defaultConfig.StreamAddr, "TCP listen address.")
	flag.DurationVar(&defaultConfig.StatusPeriod, "status-period", defaultConfig.StatusPeriod, "Module status publishing period.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MachineID retrieves the unique ID identifying the machine.
func MachineID() string {
	id, err := machineid.ID()
	if err != nil {
		glog.Warningf("machine ID unavailable: %v", err)
		return uuid.New().String()
	}
	return id
}

// Bridge publishes module status and serves commands on all
// configured endpoints.
type Bridge struct {
	Config  *Config
	Handler *Handler
	Events  comm.Broadcaster

	mqttHost   *mqtt.Host
	lastStatus time.Time
	conns      sync.WaitGroup
}

// NewBridge creates the bridge.
func (c *Config) NewBridge(reg Registry) (*Bridge, error) {
	if c.HostID == "" {
		c.HostID = MachineID()
	}
	b := &Bridge{
		Config:  c,
		Handler: &Handler{Registry: reg},
	}
	if c.MQTTBrokerURL != "" {
		host, err := mqtt.NewHost(c.MQTTBrokerURL, c.HostID, mqtt.HostMeta{Description: c.Description}, b.Handler)
		if err != nil {
			return nil, fmt.Errorf("create MQTT host error: %w", err)
		}
		b.mqttHost = host
		b.Events.Add(host)
	}
	return b, nil
}

// MustNewBridge creates the bridge and fails on error.
func (c *Config) MustNewBridge(reg Registry) *Bridge {
	b, err := c.NewBridge(reg)
	if err != nil {
		log.Fatalln(err)
	}
	return b
}

// AddToLoop implements LoopAdder.
func (b *Bridge) AddToLoop(loop *fx.Loop) {
	if b.mqttHost != nil {
		loop.Add(b.mqttHost)
	}
	if b.Config.WebsocketAddr != "" {
		loop.AddRunnable(fx.RunFunc(b.serveWebsocket))
	}
	if b.Config.StreamAddr != "" {
		loop.AddRunnable(fx.RunFunc(b.serveStream))
	}
	loop.AddController(b)
}

// Control implements Controller. It publishes module status every
// StatusPeriod.
func (b *Bridge) Control(cc fx.ControlContext) error {
	period := b.Config.StatusPeriod
	if period <= 0 {
		period = DefaultStatusPeriod
	}
	now := cc.Time()
	if now.Sub(b.lastStatus) < period || b.Events.Len() == 0 {
		return nil
	}
	b.lastStatus = now
	b.PublishStatus()
	return nil
}

// PublishStatus sends the status of every module to all peers.
func (b *Bridge) PublishStatus() {
	for _, m := range b.Handler.Registry.Modules() {
		ev := &msgs.ModuleStatus{PbModuleStatus: *msgs.StatusOf(m)}
		if err := b.Events.SendEvent(ev); err != nil {
			glog.V(1).Infof("publish %s status: %v", m, err)
		}
	}
}

// Serve serves commands from a connected peer until the connection
// closes or ctx is done, while forwarding events to it.
func (b *Bridge) Serve(ctx context.Context, rw comm.PacketReadWriter) error {
	server := comm.NewServer(rw, b.Handler)
	b.Events.Add(server)
	defer b.Events.Remove(server)
	return server.Run(ctx)
}

func (b *Bridge) serveWebsocket(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle(WebsocketPath, websocket.Handler(func(rw *websocket.ReadWriter) {
		id := uuid.New()
		glog.Infof("websocket %s connected from %s", id, rw.RemoteAddr())
		err := b.Serve(ctx, rw)
		glog.Infof("websocket %s disconnected: %v", id, err)
	}))
	server := &http.Server{Addr: b.Config.WebsocketAddr, Handler: mux}
	glog.Infof("websocket listening on %s", b.Config.WebsocketAddr)
	err := fx.RunWithContextCloser(ctx, server, server.ListenAndServe)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (b *Bridge) serveStream(ctx context.Context) error {
	ln, err := net.Listen("tcp", b.Config.StreamAddr)
	if err != nil {
		return err
	}
	return b.ServeListener(ctx, ln)
}

// ServeListener accepts stream connections until ctx is done.
func (b *Bridge) ServeListener(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	glog.Infof("stream listening on %s", ln.Addr())
	defer b.conns.Wait()
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		b.conns.Add(1)
		go func() {
			defer b.conns.Done()
			id := uuid.New()
			glog.Infof("stream %s connected from %s", id, conn.RemoteAddr())
			err := b.Serve(ctx, stream.New(conn))
			glog.Infof("stream %s disconnected: %v", id, err)
		}()
	}
}
