package mqtt

import (
	"context"
	"io"
	"sync"
)

// Topic suffixes.
const (
	TopicCmd  = "/cmd"
	TopicMsg  = "/msg"
	TopicMeta = "/meta"
)

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForClient sets topics for talking to a host:
// SubTopic = hostID/msg
// PubTopic = hostID/cmd
func (p *ReadWriter) ForClient(hostID string) *ReadWriter {
	return p.WithTopics(hostID+TopicMsg, hostID+TopicCmd)
}

// ForHost sets topics for serving commands:
// SubTopic = hostID/cmd
// PubTopic = hostID/msg
func (p *ReadWriter) ForHost(hostID string) *ReadWriter {
	return p.WithTopics(hostID+TopicCmd, hostID+TopicMsg)
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.done:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Close implements io.Closer, pending ReadPacket returns io.EOF.
func (p *ReadWriter) Close() error {
	p.closeOnce.Do(func() { close(p.done) })
	return nil
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	sub := p.Queue.Sub(p.SubTopic, Handler(p.handleMsg))
	defer sub.Close()
	defer p.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-p.done:
		return nil
	}
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.done:
	}
}
