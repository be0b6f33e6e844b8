// Package server serves a namespace of things as a live page. Each websocket
// connection owns a private page whose widgets are driven by client events.
package server

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/jward/thingpad"
	"github.com/jward/thingpad/internal/logging"
)

//go:embed static
var staticFS embed.FS

// Options configures a Server.
type Options struct {
	Namespace string
	Logger    logging.Logger
}

// Server routes HTTP and websocket traffic to an engine.
type Server struct {
	engine    *thingpad.Engine
	namespace string
	log       logging.Logger
	started   time.Time

	upgrader websocket.Upgrader
	handlers map[MessageType]handlerFunc

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one connection's page.
type session struct {
	id   string
	page *thingpad.Page
	conn *websocket.Conn
}

type handlerFunc func(ctx context.Context, s *session, msg Message) error

// New creates a Server for the engine's things in opts.Namespace.
func New(engine *thingpad.Engine, opts Options) *Server {
	if opts.Namespace == "" {
		opts.Namespace = "default"
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	srv := &Server{
		engine:    engine,
		namespace: opts.Namespace,
		log:       opts.Logger,
		started:   time.Now(),
		upgrader: websocket.Upgrader{
			CheckOrigin: sameHost,
		},
		sessions: make(map[string]*session),
	}
	srv.registerHandlers()
	return srv
}

func (srv *Server) registerHandlers() {
	srv.handlers = map[MessageType]handlerFunc{
		MessageTypeInput:   srv.handleInput,
		MessageTypeKeyDown: srv.handleKeyDown,
		MessageTypeChange:  srv.handleChange,
		MessageTypeInsert:  srv.handleInsert,
		MessageTypeRemove:  srv.handleRemove,
	}
}

// Handler returns the HTTP routes.
func (srv *Server) Handler() http.Handler {
	static, _ := fs.Sub(staticFS, "static")
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", srv.handleIndex)
	mux.HandleFunc("GET /ws", srv.handleWebSocket)
	mux.HandleFunc("GET /healthz", srv.handleHealth)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	return mux
}

// ListenAndServe serves on addr until ctx is cancelled.
func (srv *Server) ListenAndServe(ctx context.Context, addr string) error {
	hs := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		srv.log.Info("server listening", "addr", addr, "namespace", srv.namespace)
		errCh <- hs.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hs.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	}
}

func sameHost(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	origin = strings.TrimPrefix(strings.TrimPrefix(origin, "http://"), "https://")
	return origin == r.Host
}

func (srv *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	p, err := srv.engine.ThingsPage(r.Context(), srv.namespace, thingpad.PageOptions{Scripts: []string{"/static/live.js"}})
	if err != nil {
		srv.log.Error("render index", "error", err)
		http.Error(w, "could not render things", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := p.Render(&buf); err != nil {
		srv.log.Error("render index", "error", err)
		http.Error(w, "could not render things", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

func (srv *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := Health{
		Status:    "ok",
		Uptime:    time.Since(srv.started).Round(time.Second).String(),
		Sessions:  srv.sessionCount(),
		Namespace: srv.namespace,
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if mi, err := proc.MemoryInfo(); err == nil {
			h.RSSBytes = mi.RSS
		}
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		h.MemoryUsed = vm.UsedPercent
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h)
}

func (srv *Server) sessionCount() int {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return len(srv.sessions)
}

// handleWebSocket runs one connection. Messages are handled in arrival
// order on the connection's goroutine, which is also the only writer.
func (srv *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.upgrader.Upgrade(w, r, nil)
	if err != nil {
		srv.log.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	ctx := r.Context()
	page, err := srv.engine.ThingsPage(ctx, srv.namespace, thingpad.PageOptions{})
	if err != nil {
		srv.log.Error("open session page", "error", err)
		_ = conn.WriteJSON(Message{Type: MessageTypeError, Error: "could not load things"})
		return
	}
	s := &session{id: uuid.NewString(), page: page, conn: conn}
	srv.mu.Lock()
	srv.sessions[s.id] = s
	srv.mu.Unlock()
	defer func() {
		srv.mu.Lock()
		delete(srv.sessions, s.id)
		srv.mu.Unlock()
		srv.log.Debug("session closed", "session", s.id)
	}()
	srv.log.Debug("session opened", "session", s.id, "widgets", len(page.Widgets()))

	ready := Message{Type: MessageTypeReady, Session: s.id, Widgets: []WidgetState{}}
	for _, wd := range page.Widgets() {
		ready.Widgets = append(ready.Widgets, widgetState(wd))
	}
	if err := conn.WriteJSON(ready); err != nil {
		return
	}

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				srv.log.Warn("websocket read", "session", s.id, "error", err)
			}
			return
		}
		if err := srv.handleMessage(ctx, s, msg); err != nil {
			reply := Message{Type: MessageTypeError, RequestID: msg.RequestID, Widget: msg.Widget, Error: err.Error()}
			if err := conn.WriteJSON(reply); err != nil {
				return
			}
		}
	}
}

func (srv *Server) handleMessage(ctx context.Context, s *session, msg Message) error {
	handler, ok := srv.handlers[msg.Type]
	if !ok {
		return fmt.Errorf("unknown message type: %q", msg.Type)
	}
	return handler(ctx, s, msg)
}

func widgetState(w *thingpad.Widget) WidgetState {
	res := w.Output()
	st := WidgetState{
		ID:     w.ID(),
		Thing:  w.ThingID(),
		Output: res.Output,
		Failed: res.Failed,
		Kind:   res.Kind,
	}
	if snap, err := w.Snapshot(); err == nil {
		st.Snapshot = snap
	}
	return st
}

func (s *session) widget(id string) (*thingpad.Widget, error) {
	if id == "" {
		return nil, errors.New("message has no widget id")
	}
	return s.page.Widget(id)
}

func (s *session) sendResult(msg Message, w *thingpad.Widget) error {
	st := widgetState(w)
	return s.conn.WriteJSON(Message{Type: MessageTypeResult, RequestID: msg.RequestID, Widget: w.ID(), Result: &st})
}

// handleInput mirrors typing: the source changes, nothing is evaluated.
func (srv *Server) handleInput(_ context.Context, s *session, msg Message) error {
	w, err := s.widget(msg.Widget)
	if err != nil {
		return err
	}
	w.SetSource(msg.Source)
	return nil
}

func (srv *Server) handleKeyDown(ctx context.Context, s *session, msg Message) error {
	w, err := s.widget(msg.Widget)
	if err != nil {
		return err
	}
	if !w.KeyDown(ctx, thingpad.KeyEvent{Key: msg.Key, Ctrl: msg.Ctrl}) {
		return nil
	}
	return s.sendResult(msg, w)
}

// handleChange evaluates and stores the committed source on the widget's
// thing.
func (srv *Server) handleChange(ctx context.Context, s *session, msg Message) error {
	w, err := s.widget(msg.Widget)
	if err != nil {
		return err
	}
	if !w.Change(ctx) {
		return nil
	}
	if id := w.ThingID(); id != "" {
		if err := srv.engine.UpdateThing(id, w.Source()); err != nil {
			srv.log.Warn("persist thing", "thing", id, "error", err)
		}
	}
	return s.sendResult(msg, w)
}

func (srv *Server) handleInsert(ctx context.Context, s *session, msg Message) error {
	kind := msg.Kind
	if kind == "" {
		kind = "javascript"
	}
	t, err := srv.engine.AddThing(srv.namespace, kind, msg.Source)
	if err != nil {
		return err
	}
	var block bytes.Buffer
	if err := srv.engine.RenderThing(&block, t); err != nil {
		return err
	}
	added, err := s.page.Insert(ctx, block.String())
	if err != nil {
		return err
	}
	if len(added) != 1 {
		return fmt.Errorf("inserted %d widgets, want 1", len(added))
	}
	w := added[0]
	html, err := s.page.BlockHTML(w.ID())
	if err != nil {
		return err
	}
	st := widgetState(w)
	return s.conn.WriteJSON(Message{
		Type:      MessageTypeInserted,
		RequestID: msg.RequestID,
		Widget:    w.ID(),
		HTML:      html,
		Result:    &st,
	})
}

// handleRemove drops the widget and the thing it was rendered from.
func (srv *Server) handleRemove(_ context.Context, s *session, msg Message) error {
	w, err := s.widget(msg.Widget)
	if err != nil {
		return err
	}
	if err := s.page.Remove(w.ID()); err != nil {
		return err
	}
	if id := w.ThingID(); id != "" {
		if err := srv.engine.DeleteThing(id); err != nil {
			return err
		}
	}
	return s.conn.WriteJSON(Message{Type: MessageTypeRemoved, RequestID: msg.RequestID, Widget: w.ID()})
}
