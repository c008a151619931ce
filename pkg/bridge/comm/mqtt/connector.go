package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/robotalks/fable.go/pkg/bridge/comm"
)

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// HostInfo describes a discovered host.
type HostInfo struct {
	HostID string
	Meta   HostMeta
}

// Connector finds hosts and connects to them.
type Connector struct {
	DiscoverTimeout time.Duration

	options     *paho.ClientOptions
	topicPrefix string
}

// NewConnector creates a Connector.
func NewConnector(brokerURL string) (*Connector, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	return &Connector{
		DiscoverTimeout: DefaultDiscoverTimeout,
		options:         opts,
		topicPrefix:     topicPrefix,
	}, nil
}

// Discover lists hosts with retained metadata.
func (c *Connector) Discover(ctx context.Context) (res []HostInfo, err error) {
	q := NewQueue(c.options, c.topicPrefix)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	defer q.Close()
	resCh := make(chan HostInfo, 16)
	q.Sub("+"+TopicMeta, Handler(func(topic string, payload []byte) {
		if info, ok := ParseMeta(topic, payload); ok {
			select {
			case resCh <- info:
			case <-time.After(time.Second):
			}
		}
	}))

	dur := c.DiscoverTimeout
	if dur == 0 {
		dur = DefaultDiscoverTimeout
	}
	timeout := time.After(dur)
	for {
		select {
		case info := <-resCh:
			res = append(res, info)
		case <-timeout:
			return
		case <-ctx.Done():
			err = ctx.Err()
			return
		}
	}
}

// ParseMeta decodes a retained metadata message. Cleared metadata
// means the host is offline.
func ParseMeta(topic string, payload []byte) (HostInfo, bool) {
	hostID := strings.TrimSuffix(topic, TopicMeta)
	if hostID == topic || hostID == "" || strings.Contains(hostID, "/") || len(payload) == 0 {
		return HostInfo{}, false
	}
	info := HostInfo{HostID: hostID}
	if err := json.Unmarshal(payload, &info.Meta); err != nil {
		return HostInfo{}, false
	}
	return info, true
}

// Connect connects to a host. The returned client must be added to a
// loop or run.
func (c *Connector) Connect(ctx context.Context, hostID string) (*Client, error) {
	conn := &Client{Queue: NewQueue(c.options, c.topicPrefix)}
	conn.Init(NewPacketReadWriter(conn.Queue).ForClient(hostID))
	token := conn.Queue.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return conn, nil
}

// Client is a comm.Client over MQTT.
type Client struct {
	comm.Client
	Queue *Queue
}
