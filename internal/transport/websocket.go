package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/liuscraft/orion-speech/internal/logging"
)

// WebSocketDialer 通过 WebSocket 连接识别服务：文本帧承载 JSON 控制消息，二进制帧承载音频
type WebSocketDialer struct {
	Endpoint string
	APIKey   string
	Options  Options
	// Dialer defaults to websocket.DefaultDialer.
	Dialer *websocket.Dialer
}

func (d *WebSocketDialer) Dial(ctx context.Context, hs Handshake) (Channel, error) {
	if d.Endpoint == "" {
		return nil, &OpError{Op: OpDial, Err: errors.New("websocket endpoint is required")}
	}

	header := http.Header{}
	if d.APIKey != "" {
		header.Set("Authorization", fmt.Sprintf("Bearer %s", d.APIKey))
	}
	header.Set("X-Client-ID", hs.ClientID)

	dialer := d.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, d.Endpoint, header)
	if err != nil {
		if resp != nil {
			err = fmt.Errorf("%w (status %d)", err, resp.StatusCode)
		}
		return nil, &OpError{Op: OpDial, Err: err}
	}

	w := &wsWire{conn: conn}
	payload, err := encodeStart(hs)
	if err != nil {
		_ = conn.Close()
		return nil, &OpError{Op: OpDial, Err: err}
	}
	if err := w.WriteControl(payload); err != nil {
		_ = conn.Close()
		return nil, &OpError{Op: OpDial, Err: fmt.Errorf("send handshake: %w", err)}
	}

	logging.Debugf("transport: websocket connected to %s (task=%s)", d.Endpoint, hs.TaskID)
	return newChannel(w, d.Options, hs.TaskID), nil
}

type wsWire struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (w *wsWire) WriteAudio(frame []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (w *wsWire) WriteControl(payload []byte) error {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, payload)
}

func (w *wsWire) ReadPacket() ([]byte, error) {
	for {
		msgType, data, err := w.conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if msgType == websocket.TextMessage {
			return data, nil
		}
	}
}

func (w *wsWire) Close() error {
	// WriteControl and Close may run concurrently with the writer goroutine.
	_ = w.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	return w.conn.Close()
}
