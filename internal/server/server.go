package server

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/iwizard7/Quansheng-k5-flasher/internal/codec"
)

// Radio is the slice of the radio session the server consumes. Reads
// may take seconds on a flaky link; the session serializes access, so
// concurrent handlers are safe.
type Radio interface {
	ReadDeviceInfo(ctx context.Context) (*codec.DeviceInfo, error)
	ReadBatteryVoltage(ctx context.Context) (codec.BatteryReading, error)
	ReadSettings(ctx context.Context) (*codec.Settings, error)
	ReadChannels(ctx context.Context) ([]codec.Channel, error)
}

// Server polls the radio and broadcasts status to WebSocket clients.
type Server struct {
	cfg   *Config
	radio Radio

	clients   map[*wsClient]struct{}
	clientsMu sync.RWMutex

	upgrader websocket.Upgrader

	stateMu sync.Mutex
	info    *codec.DeviceInfo
	battery *codec.BatteryReading
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
}

// StatusFrame is the JSON structure sent to all WebSocket clients and
// returned by /api/status.
type StatusFrame struct {
	Info    *codec.DeviceInfo     `json:"info,omitempty"`
	Battery *codec.BatteryReading `json:"battery,omitempty"`
	Stamp   int64                 `json:"stamp"` // Unix ms
}

// New creates a new Server.
func New(cfg *Config, r Radio) *Server {
	return &Server{
		cfg:     cfg,
		radio:   r,
		clients: make(map[*wsClient]struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// Handler builds the HTTP routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/info", s.handleInfo)
	mux.HandleFunc("/api/channels", s.handleChannels)
	mux.HandleFunc("/api/settings", s.handleSettings)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

// Run starts the HTTP server and the battery poll loop.
func (s *Server) Run(ctx context.Context) error {
	go s.pollLoop(ctx)

	srv := &http.Server{
		Addr:    s.cfg.Server.ListenAddr,
		Handler: s.Handler(),
	}

	go func() {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	log.Printf("[server] listening on %s", s.cfg.Server.ListenAddr)
	return srv.ListenAndServe()
}

// pollLoop reads device identity once, then keeps the battery reading
// fresh and broadcasts every update.
func (s *Server) pollLoop(ctx context.Context) {
	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	if info, err := s.radio.ReadDeviceInfo(readCtx); err == nil {
		s.stateMu.Lock()
		s.info = info
		s.stateMu.Unlock()
		log.Printf("[server] radio identified: %s firmware %s", info.Model, info.FirmwareVersion)
	} else {
		log.Printf("[server] device info unavailable: %v", err)
	}
	cancel()
	s.broadcast(s.snapshot())

	pollSec := s.cfg.Server.PollSeconds
	if pollSec <= 0 {
		pollSec = 10
	}
	ticker := time.NewTicker(time.Duration(pollSec) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			readCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
			reading, err := s.radio.ReadBatteryVoltage(readCtx)
			cancel()
			if err != nil {
				log.Printf("[server] battery poll failed: %v", err)
				continue
			}
			s.stateMu.Lock()
			s.battery = &reading
			s.stateMu.Unlock()
			s.broadcast(s.snapshot())
		}
	}
}

// snapshot assembles the current status under the state lock.
func (s *Server) snapshot() StatusFrame {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return StatusFrame{
		Info:    s.info,
		Battery: s.battery,
		Stamp:   time.Now().UnixMilli(),
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn: conn,
		send: make(chan []byte, 64),
	}

	s.clientsMu.Lock()
	s.clients[client] = struct{}{}
	total := len(s.clients)
	s.clientsMu.Unlock()

	log.Printf("[ws] client connected (%d total)", total)

	// Send the current status straight away
	if data, err := json.Marshal(s.snapshot()); err == nil {
		client.send <- data
	}

	// Writer goroutine
	go func() {
		defer conn.Close()
		for msg := range client.send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				break
			}
		}
	}()

	// Reader goroutine (handle incoming messages / keep-alive)
	go func() {
		defer func() {
			s.clientsMu.Lock()
			delete(s.clients, client)
			total := len(s.clients)
			s.clientsMu.Unlock()
			close(client.send)
			log.Printf("[ws] client disconnected (%d total)", total)
		}()
		for {
			_, _, err := conn.ReadMessage()
			if err != nil {
				break
			}
		}
	}()
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	writeJSON(w, s.snapshot())
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	info, err := s.radio.ReadDeviceInfo(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	s.stateMu.Lock()
	s.info = info
	s.stateMu.Unlock()
	writeJSON(w, info)
}

func (s *Server) handleChannels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	chans, err := s.radio.ReadChannels(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	writeJSON(w, chans)
}

func (s *Server) handleSettings(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", 405)
		return
	}
	settings, err := s.radio.ReadSettings(r.Context())
	if err != nil {
		http.Error(w, err.Error(), 502)
		return
	}
	writeJSON(w, settings)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		data, err := s.cfg.ToJSON()
		if err != nil {
			http.Error(w, err.Error(), 500)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)

	case http.MethodPost:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "bad request", 400)
			return
		}
		if err := s.cfg.UpdateFromJSON(body); err != nil {
			http.Error(w, err.Error(), 400)
			return
		}
		if err := s.cfg.Save(); err != nil {
			log.Printf("[config] save failed: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))

	default:
		http.Error(w, "method not allowed", 405)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func (s *Server) broadcast(frame StatusFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}

	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for client := range s.clients {
		select {
		case client.send <- data:
		default:
			// Client too slow, skip
		}
	}
}
