package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dyzsasd/tomo/internal/processor"
	"github.com/dyzsasd/tomo/pkg/observability"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the assistant as a line-protocol server",
	Long: `Accepts TCP connections speaking newline-delimited JSON. Each inbound
line is {"session_id": "...", "text": "..."}; bot replies go back on
the connection that owns the session as {"session_id": ..., "text": ...}.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", ":7654", "message listener address")
}

func runServe(cmd *cobra.Command, args []string) error {
	log.Printf("Starting tomo v%s", Version)

	observability.InitMetrics()
	if err := observability.InitTracingFromEnv(); err != nil {
		log.Printf("[RUNTIME] tracing disabled: %v", err)
	}

	hub := newConnHub()
	rt, err := buildRuntime(hub)
	if err != nil {
		return err
	}
	defer rt.close()

	if rt.janitor != nil {
		if err := rt.janitor.Start(); err != nil {
			return fmt.Errorf("start janitor: %w", err)
		}
	}

	errChan := make(chan error, 3)

	var obsServer *observability.Server
	if rt.cfg.Observability.Enabled {
		checker := observability.NewHealthChecker()
		checker.Register("store", storePing(rt.store))
		obsServer = observability.NewServer(rt.cfg.Observability.Port, checker)
		go func() {
			log.Printf("Observability on :%d", rt.cfg.Observability.Port)
			if err := obsServer.Start(); err != nil {
				errChan <- fmt.Errorf("observability server: %w", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	inbox := make(chan processor.Message, 64)
	go func() {
		errChan <- rt.processor.Serve(ctx, inbox, rt.cfg.Runtime.Workers)
	}()

	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", listenAddr, err)
	}
	defer ln.Close()
	log.Printf("Listening for messages on %s", listenAddr)
	go acceptLoop(ctx, ln, hub, inbox)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil && ctx.Err() == nil {
			log.Printf("Error: %v", err)
		}
	case <-quit:
		log.Println("Shutting down...")
	}

	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if obsServer != nil {
		if err := obsServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("Observability shutdown error: %v", err)
		}
	}
	if err := observability.ShutdownTracing(shutdownCtx); err != nil {
		log.Printf("Tracing shutdown error: %v", err)
	}

	log.Println("Stopped")
	return nil
}

func acceptLoop(ctx context.Context, ln net.Listener, hub *connHub, inbox chan<- processor.Message) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[SERVER] accept: %v", err)
			continue
		}
		go serveConn(ctx, conn, hub, inbox)
	}
}

// serveConn reads one client connection. Sessions default to one fresh
// ID per connection; clients juggling several conversations set
// session_id explicitly.
func serveConn(ctx context.Context, conn net.Conn, hub *connHub, inbox chan<- processor.Message) {
	defer conn.Close()
	defer hub.dropConn(conn)

	defaultSession := uuid.NewString()
	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var msg wireMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			log.Printf("[SERVER] bad message from %s: %v", conn.RemoteAddr(), err)
			continue
		}
		if msg.SessionID == "" {
			msg.SessionID = defaultSession
		}
		hub.bind(msg.SessionID, conn)

		select {
		case inbox <- processor.Message{SessionID: msg.SessionID, Text: msg.Text}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		log.Printf("[SERVER] read from %s: %v", conn.RemoteAddr(), err)
	}
}

// wireMessage is one inbound line on a client connection.
type wireMessage struct {
	SessionID string `json:"session_id,omitempty"`
	Text      string `json:"text"`
}

// wireReply is one outbound line.
type wireReply struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// connHub routes bot replies back to the connection that owns each
// session. A session rebinding to a new connection (reconnect) simply
// overwrites the mapping.
type connHub struct {
	mu    sync.RWMutex
	conns map[string]net.Conn
	// wmu serializes writes so replies from concurrent turns do not
	// interleave on one connection.
	wmu sync.Mutex
}

func newConnHub() *connHub {
	return &connHub{conns: make(map[string]net.Conn)}
}

func (h *connHub) Name() string { return "tcp" }

func (h *connHub) SendText(_ context.Context, sessionID, text string) error {
	h.mu.RLock()
	conn := h.conns[sessionID]
	h.mu.RUnlock()
	if conn == nil {
		// The client went away mid-turn; the reply is still in the
		// session history.
		log.Printf("[SERVER] no connection for session %s, reply dropped", sessionID)
		return nil
	}

	payload, err := json.Marshal(wireReply{SessionID: sessionID, Text: text})
	if err != nil {
		return err
	}
	h.wmu.Lock()
	defer h.wmu.Unlock()
	_, err = conn.Write(append(payload, '\n'))
	return err
}

func (h *connHub) bind(sessionID string, conn net.Conn) {
	h.mu.Lock()
	h.conns[sessionID] = conn
	h.mu.Unlock()
}

func (h *connHub) dropConn(conn net.Conn) {
	h.mu.Lock()
	for id, c := range h.conns {
		if c == conn {
			delete(h.conns, id)
		}
	}
	h.mu.Unlock()
}
