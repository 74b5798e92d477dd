package counter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/datapowersync/counters/internal/logr"
	"github.com/gorilla/mux"
)

// wsWriteTimeout is the time permitted to write an event to a websocket
// client before the client is dropped.
const wsWriteTimeout = 5 * time.Second

// stream serves live change events to clients, over server-sent-events or a
// websocket. Each client subscribes for the lifetime of its request.
type stream struct {
	*Service
	logr.Logger
}

func (s *stream) addHandlers(r *mux.Router) {
	r = countershttp.APIRouter(r)

	r.HandleFunc("/counters/events", s.sse).Methods("GET")
	r.HandleFunc("/counters/ws", s.websocket).Methods("GET")
}

func (s *stream) sse(w http.ResponseWriter, r *http.Request) {
	events, unsubscribe := s.Watch(r.Context())
	defer unsubscribe()

	flusher, err := countershttp.StartSSE(w)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	s.V(1).Info("opened event stream", "transport", "sse", "remote", r.RemoteAddr)

	// channel is closed when the request context is done or when the broker
	// drops this subscriber.
	for event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			s.Error(err, "marshalling change event", "event", event)
			continue
		}
		if err := countershttp.WriteSSEEvent(w, b, string(event.Kind)); err != nil {
			// treat failure to send as the client having gone away
			s.V(1).Info("sending change event", "transport", "sse", "error", err.Error())
			return
		}
		flusher.Flush()
	}
	s.V(1).Info("closed event stream", "transport", "sse", "remote", r.RemoteAddr)
}

func (s *stream) websocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.V(1).Info("websocket upgrade failed", "error", err.Error())
		return
	}
	defer conn.CloseNow()

	// Clients send nothing; the returned context is canceled once the client
	// closes the connection.
	ctx := conn.CloseRead(r.Context())

	events, unsubscribe := s.Watch(ctx)
	defer unsubscribe()

	s.V(1).Info("opened event stream", "transport", "websocket", "remote", r.RemoteAddr)

	for event := range events {
		b, err := json.Marshal(event)
		if err != nil {
			s.Error(err, "marshalling change event", "event", event)
			continue
		}
		if err := s.write(ctx, conn, b); err != nil {
			// treat failure to send as the client having gone away
			s.V(1).Info("sending change event", "transport", "websocket", "error", err.Error())
			return
		}
	}
	if ctx.Err() == nil {
		// the broker dropped the subscription
		conn.Close(websocket.StatusTryAgainLater, "subscriber fell behind")
		return
	}
	s.V(1).Info("closed event stream", "transport", "websocket", "remote", r.RemoteAddr)
}

func (s *stream) write(ctx context.Context, conn *websocket.Conn, b []byte) error {
	ctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()

	return conn.Write(ctx, websocket.MessageText, b)
}
