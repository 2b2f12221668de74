package samplemux

import (
	"io"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/banshee-data/boptrack/internal/monitoring"
)

// natsLineBuffer is the number of sample lines buffered between the NATS
// subscription callback and Read. Messages beyond this are dropped rather
// than blocking the NATS client.
const natsLineBuffer = 256

// NATSPort adapts a NATS subscription to the Porter interface so that sample
// lines published on a subject can feed a SampleMux just like a serial
// device. Each message is one line; Write publishes commands to a companion
// subject ("<subject>.commands").
type NATSPort struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	cmdSubj string

	lines    chan []byte
	leftover []byte

	mu     sync.Mutex
	closed bool
}

// DialNATSPort connects to the NATS server at url and subscribes to subject.
func DialNATSPort(url, subject string) (*NATSPort, error) {
	nc, err := nats.Connect(
		url,
		nats.Name("boptrack"),
		nats.Timeout(3*time.Second),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, err
	}

	p := &NATSPort{
		nc:      nc,
		cmdSubj: subject + ".commands",
		lines:   make(chan []byte, natsLineBuffer),
	}
	sub, err := nc.Subscribe(subject, p.deliver)
	if err != nil {
		nc.Close()
		return nil, err
	}
	p.sub = sub
	return p, nil
}

// deliver runs on the NATS client's callback goroutine. The send is
// non-blocking so a slow reader stalls the buffer, not the client.
func (p *NATSPort) deliver(msg *nats.Msg) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	line := make([]byte, 0, len(msg.Data)+1)
	line = append(line, msg.Data...)
	line = append(line, '\n')
	select {
	case p.lines <- line:
	default:
		monitoring.Debugf("samplemux: nats reader too slow, dropping message on %s", msg.Subject)
	}
}

func (p *NATSPort) Read(b []byte) (int, error) {
	if len(p.leftover) == 0 {
		line, ok := <-p.lines
		if !ok {
			return 0, io.EOF
		}
		p.leftover = line
	}
	n := copy(b, p.leftover)
	p.leftover = p.leftover[n:]
	return n, nil
}

func (p *NATSPort) Write(b []byte) (int, error) {
	if err := p.nc.Publish(p.cmdSubj, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (p *NATSPort) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.lines)
	p.mu.Unlock()

	if p.sub != nil {
		_ = p.sub.Unsubscribe()
	}
	return p.nc.Drain()
}

// NewNATSMux creates a SampleMux instance fed by a NATS subject.
func NewNATSMux(url, subject string) (*SampleMux[*NATSPort], error) {
	port, err := DialNATSPort(url, subject)
	if err != nil {
		return nil, err
	}
	return NewSampleMux(port), nil
}
