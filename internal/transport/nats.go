package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/liuscraft/orion-speech/internal/logging"
	"github.com/nats-io/nats.go"
)

const (
	natsEventHeader = "Speech-Event"
	natsEventAudio  = "audio"
	natsEventCtrl   = "control"
)

// NATSDialer 通过 NATS 与识别服务通信。上行发布到 <Subject>.<task_id>，
// 下行消息发送到每个会话独立的 inbox。
type NATSDialer struct {
	URL     string
	Subject string
	Token   string
	Name    string
	Options Options
}

func (d *NATSDialer) Dial(ctx context.Context, hs Handshake) (Channel, error) {
	if strings.TrimSpace(d.URL) == "" {
		return nil, &OpError{Op: OpDial, Err: errors.New("nats url is required")}
	}
	if err := ctx.Err(); err != nil {
		return nil, &OpError{Op: OpDial, Err: err}
	}

	name := d.Name
	if name == "" {
		name = "orion-speech"
	}
	opts := []nats.Option{nats.Name(name), nats.MaxReconnects(0)}
	if d.Token != "" {
		opts = append(opts, nats.Token(d.Token))
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, nats.Timeout(time.Until(deadline)))
	}

	nc, err := nats.Connect(d.URL, opts...)
	if err != nil {
		return nil, &OpError{Op: OpDial, Err: err}
	}

	subject := d.Subject
	if subject == "" {
		subject = "speech"
	}
	w := &natsWire{
		nc:      nc,
		subject: fmt.Sprintf("%s.%s", subject, hs.TaskID),
		inbox:   nc.NewRespInbox(),
		msgs:    make(chan *nats.Msg, 64),
		closeCh: make(chan struct{}),
	}
	w.sub, err = nc.ChanSubscribe(w.inbox, w.msgs)
	if err != nil {
		nc.Close()
		return nil, &OpError{Op: OpDial, Err: fmt.Errorf("subscribe inbox: %w", err)}
	}

	payload, err := encodeStart(hs)
	if err == nil {
		err = w.WriteControl(payload)
	}
	if err == nil {
		err = nc.FlushWithContext(ctx)
	}
	if err != nil {
		_ = w.Close()
		return nil, &OpError{Op: OpDial, Err: fmt.Errorf("send handshake: %w", err)}
	}

	logging.Debugf("transport: nats connected to %s (subject=%s)", d.URL, w.subject)
	return newChannel(w, d.Options, hs.TaskID), nil
}

type natsWire struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   string
	msgs    chan *nats.Msg
	closeCh chan struct{}
}

func (w *natsWire) publish(event string, data []byte) error {
	msg := nats.NewMsg(w.subject)
	msg.Reply = w.inbox
	msg.Header.Set(natsEventHeader, event)
	msg.Data = data
	return w.nc.PublishMsg(msg)
}

func (w *natsWire) WriteAudio(frame []byte) error {
	return w.publish(natsEventAudio, frame)
}

func (w *natsWire) WriteControl(payload []byte) error {
	return w.publish(natsEventCtrl, payload)
}

func (w *natsWire) ReadPacket() ([]byte, error) {
	select {
	case msg := <-w.msgs:
		return msg.Data, nil
	case <-w.closeCh:
		return nil, ErrClosed
	}
}

func (w *natsWire) Close() error {
	select {
	case <-w.closeCh:
		return nil
	default:
		close(w.closeCh)
	}
	var err error
	if w.sub != nil {
		err = w.sub.Unsubscribe()
	}
	w.nc.Close()
	if errors.Is(err, nats.ErrConnectionClosed) {
		err = nil
	}
	return err
}
