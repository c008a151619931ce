package mqtt

import (
	"context"
	"encoding/json"

	"github.com/robotalks/fable.go/pkg/bridge/comm"
	"github.com/robotalks/fable.go/pkg/bridge/msgs"
	fx "github.com/robotalks/fable.go/pkg/framework"
)

// HostMeta is published retained to hostID/meta while the host is
// online, an empty retained message clears it.
type HostMeta struct {
	Description string            `json:"description,omitempty"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Host serves bridge commands over MQTT.
type Host struct {
	Queue  *Queue
	HostID string
	Meta   HostMeta

	server *comm.Server
}

// NewHost creates a Host.
func NewHost(brokerURL, hostID string, meta HostMeta, h comm.CommandHandler) (*Host, error) {
	opts, topicPrefix, err := ClientOptionsFromURL(brokerURL)
	if err != nil {
		return nil, err
	}
	opts.SetBinaryWill(topicPrefix+hostID+TopicMeta, nil, 1, true)
	if opts.ClientID == "" {
		opts.SetClientID("fable:" + hostID)
	}
	host := &Host{
		Queue:  NewQueue(opts, topicPrefix),
		HostID: hostID,
		Meta:   meta,
	}
	host.Queue.OnConnect = func(*Queue) { host.publishMeta() }
	host.server = comm.NewServer(NewPacketReadWriter(host.Queue).ForHost(hostID), h)
	return host, nil
}

// SendEvent implements comm.EventSender.
func (h *Host) SendEvent(msg msgs.Message) error {
	return h.server.SendEvent(msg)
}

// AddToLoop implements LoopAdder.
func (h *Host) AddToLoop(loop *fx.Loop) {
	loop.Add(h.server)
	loop.AddRunnable(h)
}

// Run implements Runnable.
func (h *Host) Run(ctx context.Context) error {
	h.Queue.Connect()
	<-ctx.Done()
	h.Queue.PubWith(h.HostID+TopicMeta, nil, 1, true).Wait()
	h.Queue.Close()
	return nil
}

func (h *Host) publishMeta() {
	meta, err := json.Marshal(&h.Meta)
	if err != nil {
		panic(err)
	}
	h.Queue.PubWith(h.HostID+TopicMeta, meta, 1, true)
}
