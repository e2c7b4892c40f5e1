package transport

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/reqsprint/reqsprint/internal/netx"
	"github.com/reqsprint/reqsprint/internal/reqerr"
)

// StreamTransport opens a long-lived WebSocket connection for a
// descriptor whose ResponseForm is FormStream and a URL using the
// ws/wss scheme, delivering decoded messages on the returned channel
// until ctx is cancelled or the connection closes.
type StreamTransport struct {
	dialer *websocket.Dialer
}

func NewStreamTransport() *StreamTransport {
	return &StreamTransport{
		dialer: &websocket.Dialer{
			NetDialContext:   netx.DialContextWithResolver,
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// Message is one frame received from the stream, or a terminal error.
type Message struct {
	Data []byte
	Err  error
}

// Open dials desc.URL and returns a channel of incoming messages. The
// channel is closed once the connection ends; the final value on the
// channel, if any, carries the error that ended it.
func (s *StreamTransport) Open(ctx context.Context, desc Descriptor) (<-chan Message, error) {
	headers := make(map[string][]string, len(desc.Headers))
	for k, v := range desc.Headers {
		headers[k] = []string{v}
	}

	conn, _, err := s.dialer.DialContext(ctx, desc.URL, headers)
	if err != nil {
		return nil, reqerr.NewNetworkError(err.Error(), ctxFrom(desc))
	}

	out := make(chan Message, 16)
	go func() {
		defer close(out)
		defer conn.Close()
		for {
			select {
			case <-ctx.Done():
				out <- Message{Err: reqerr.New(reqerr.KindTimeout, "STREAM_ABORTED", "Request aborted", false)}
				return
			default:
			}
			_, data, err := conn.ReadMessage()
			if err != nil {
				out <- Message{Err: reqerr.NewNetworkError(err.Error(), ctxFrom(desc))}
				return
			}
			out <- Message{Data: data}
		}
	}()
	return out, nil
}
