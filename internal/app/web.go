package app

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/edaniels/golog"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"

	"github.com/relabs-tech/ecompass/internal/config"
	"github.com/relabs-tech/ecompass/internal/orientation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // local network dashboard
	},
}

const (
	clientQueue  = 8
	writeTimeout = 2 * time.Second
)

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub keeps the last heading received over MQTT and fans every new one
// out to the connected websocket clients. Slow clients miss updates
// rather than stall the hub.
type Hub struct {
	logger golog.Logger

	mu      sync.RWMutex
	latest  []byte
	reading orientation.Reading
	clients map[*wsClient]struct{}
}

func NewHub(logger golog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[*wsClient]struct{}),
	}
}

// HandleMessage accepts one MQTT payload.
func (h *Hub) HandleMessage(payload []byte) error {
	var r orientation.Reading
	if err := json.Unmarshal(payload, &r); err != nil {
		return errors.Wrap(err, "web: decode reading")
	}
	h.store(r, payload)
	return nil
}

func (h *Hub) store(r orientation.Reading, payload []byte) {
	msg := append([]byte(nil), payload...)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.latest = msg
	h.reading = r
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Debugf("web: client %s behind, dropping update", c.conn.RemoteAddr())
		}
	}
}

// Latest returns the last reading, if any arrived yet.
func (h *Hub) Latest() (orientation.Reading, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.reading, h.latest != nil
}

// Handler serves the JSON API, the live websocket and, when staticDir is
// set, the dashboard files.
func (h *Hub) Handler(staticDir string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/heading", h.serveHeading)
	mux.HandleFunc("/ws", h.serveWS)
	if staticDir != "" {
		mux.Handle("/", http.FileServer(http.Dir(staticDir)))
	}
	return mux
}

func (h *Hub) serveHeading(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	latest := h.latest
	h.mu.RUnlock()

	if latest == nil {
		http.Error(w, "no data yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(latest); err != nil {
		h.logger.Debugf("web: write heading: %v", err)
	}
}

func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("web: websocket upgrade: %v", err)
		return
	}
	c := &wsClient{conn: conn, send: make(chan []byte, clientQueue)}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	if h.latest != nil {
		c.send <- h.latest
	}
	h.mu.Unlock()
	h.logger.Debugf("web: client %s connected", conn.RemoteAddr())

	go h.writePump(c)

	// Drain until the browser goes away; clients have nothing to say.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debugf("web: websocket: %v", err)
			}
			break
		}
	}

	h.mu.Lock()
	delete(h.clients, c)
	close(c.send)
	h.mu.Unlock()
}

func (h *Hub) writePump(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.logger.Debugf("web: write to %s: %v", c.conn.RemoteAddr(), err)
			return
		}
	}
}

// RunWeb subscribes to the heading topic and serves the dashboard until
// ctx is cancelled.
func RunWeb(ctx context.Context) error {
	cfg := config.Get()
	logger, err := NewLogger("web", cfg.LogLevel)
	if err != nil {
		return err
	}
	if cfg.MQTTBroker == "" {
		return errors.New("web: MQTT_BROKER is not set")
	}

	hub := NewHub(logger)

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDWeb)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	logger.Infof("connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicHeading, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := hub.HandleMessage(msg.Payload()); err != nil {
			logger.Warnf("%v", err)
		}
	})
	token.Wait()
	if token.Error() != nil {
		return errors.Wrapf(token.Error(), "subscribe %s", cfg.TopicHeading)
	}
	logger.Infof("subscribed to MQTT topic %s", cfg.TopicHeading)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.WebServerPort),
		Handler:           hub.Handler("web"),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return serve(ctx, srv, logger)
}

// serve runs srv until ctx ends, then shuts it down.
func serve(ctx context.Context, srv *http.Server, logger golog.Logger) error {
	errc := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
