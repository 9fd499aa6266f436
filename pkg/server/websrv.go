package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/weaveworld/goweave/pkg/events"
	"github.com/weaveworld/goweave/pkg/worlddb"
)

// WebServer is the websocket transport plus the health and metrics
// endpoints.
type WebServer struct {
	app       *App
	httpSrv   *http.Server
	mux       *http.ServeMux
	upgrader  websocket.Upgrader
	startTime time.Time
}

// NewWebServer creates the web server for an app.
func NewWebServer(app *App, conf *Config) *WebServer {
	ws := &WebServer{
		app:       app,
		mux:       http.NewServeMux(),
		startTime: time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				if len(conf.CORSOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, o := range conf.CORSOrigins {
					if strings.EqualFold(o, origin) {
						return true
					}
				}
				return false
			},
		},
	}

	ws.httpSrv = &http.Server{
		Addr:    conf.Addr,
		Handler: ws.mux,
	}

	ws.mux.HandleFunc("GET /ws", ws.handleWebSocket)
	ws.mux.HandleFunc("GET /health", ws.handleHealth)

	app.Metrics = NewMetrics(app, ws.startTime)
	ws.mux.Handle("GET /metrics", app.Metrics.Handler())

	if conf.StaticDir != "" {
		if _, err := os.Stat(conf.StaticDir); err == nil {
			ws.mux.Handle("/", http.FileServer(http.Dir(conf.StaticDir)))
		} else {
			log.Printf("web: static dir %s not found, not serving a client", conf.StaticDir)
		}
	}
	return ws
}

// Start begins listening. Blocks until the server stops.
func (ws *WebServer) Start() error {
	log.Printf("web: listening on %s", ws.httpSrv.Addr)
	err := ws.httpSrv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the web server down.
func (ws *WebServer) Stop(ctx context.Context) error {
	return ws.httpSrv.Shutdown(ctx)
}

// wsConn wraps the websocket connection with a write mutex; gorilla
// permits one concurrent writer.
type wsConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (wc *wsConn) sendJSON(msg map[string]any) {
	wc.mu.Lock()
	defer wc.mu.Unlock()
	wc.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := wc.conn.WriteJSON(msg); err != nil {
		log.Printf("web: write error: %v", err)
	}
}

// encodeEvent maps a bus event to the client wire shape: the event
// type as cmd, the text, and any facet payloads flattened alongside.
func encodeEvent(ev events.Event) map[string]any {
	msg := map[string]any{"cmd": ev.Type.String()}
	if ev.Text != "" {
		msg["text"] = ev.Text
	}
	for key, val := range ev.Data {
		msg[key] = val
	}
	return msg
}

// handleWebSocket upgrades the connection and binds it to a player.
// The first message must be playeropen; afterwards every message is a
// queued command.
func (ws *WebServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	rawConn, err := ws.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	wc := &wsConn{conn: rawConn}

	go ws.readLoop(wc, r.RemoteAddr)
}

func (ws *WebServer) readLoop(wc *wsConn, addr string) {
	app := ws.app
	var conn *PlayerConn

	defer func() {
		wc.conn.Close()
		if conn != nil {
			app.DetachConn(conn)
			log.Printf("web: [%d] connection closed from %s", conn.ID(), addr)
		}
	}()

	for {
		_, raw, err := wc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("web: read error from %s: %v", addr, err)
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			wc.sendJSON(map[string]any{"cmd": "error", "text": "Invalid JSON message"})
			continue
		}

		if conn == nil {
			if msg.Cmd != "playeropen" {
				wc.sendJSON(map[string]any{"cmd": "error", "text": "You have not opened a player connection."})
				continue
			}
			opened, err := ws.openPlayer(wc, msg)
			if err != nil {
				wc.sendJSON(map[string]any{"cmd": "error", "text": err.Error()})
				continue
			}
			conn = opened
			continue
		}

		if msg.Cmd == "playeropen" {
			wc.sendJSON(map[string]any{"cmd": "error", "text": "You have already opened a player connection."})
			continue
		}
		app.QueueClient(conn, msg)
	}
}

// openPlayer validates the playeropen request, registers the
// connection, and replays recent journal lines.
func (ws *WebServer) openPlayer(wc *wsConn, msg ClientMessage) (*PlayerConn, error) {
	app := ws.app
	uid := worlddb.PlayerID(msg.UID)
	if uid == "" {
		return nil, fmt.Errorf("playeropen: no uid given")
	}
	player, err := app.Store.Player(uid)
	if err != nil {
		return nil, fmt.Errorf("playeropen: no such player: %s", uid)
	}

	conn := NewPlayerConn(app.conns.NextID(), uid, func(ev events.Event) {
		wc.sendJSON(encodeEvent(ev))
	})
	wc.sendJSON(map[string]any{"cmd": "playeropen", "uid": string(uid), "name": player.Name})

	if app.Journal != nil {
		if recent, err := app.Journal.Recent(uid, 50); err == nil {
			for _, ent := range recent {
				wc.sendJSON(map[string]any{"cmd": ent.Kind, "text": ent.Text, "replay": true})
			}
		}
	}

	app.AttachConn(conn)
	log.Printf("web: [%d] player %s connected", conn.ID(), player.Name)
	return conn, nil
}

// handleHealth reports liveness.
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"version":        Version,
		"uptime_seconds": time.Since(ws.startTime).Seconds(),
		"connections":    ws.app.conns.Count(),
	})
}
