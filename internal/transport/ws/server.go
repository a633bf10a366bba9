package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"verdant.ai/internal/protocol"
	"verdant.ai/internal/sim/sector"
	"verdant.ai/internal/sim/vegetation"
)

const (
	clientQueue       = 32
	maxVisiblePerMsg  = 256
	handshakeDeadline = 5 * time.Second
	writeDeadline     = 5 * time.Second
	readDeadline      = 60 * time.Second
)

// Requester accepts sector vegetation requests; vegetation.Queue implements it.
type Requester interface {
	Request(s sector.Sector) bool
}

type RequesterFunc func(s sector.Sector) bool

func (f RequesterFunc) Request(s sector.Sector) bool { return f(s) }

// Server streams PLACEMENTS messages to renderer clients. It is a vegetation
// sink: a client that cannot keep up loses messages instead of stalling the
// tick.
type Server struct {
	welcome  protocol.WelcomeMsg
	requests Requester
	log      *log.Logger

	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[string]chan []byte

	sent    atomic.Uint64
	dropped atomic.Uint64
}

func NewServer(gen *vegetation.Generator, requests Requester, logger *log.Logger) *Server {
	p := gen.Params()
	s := &Server{
		welcome: protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			Generation: protocol.GenerationParams{
				PlacementsPerSector: p.PlacementsPerSector,
				ChunkSize:           p.ChunkSize,
				HeightScale:         p.HeightScale,
			},
			Catalog: protocol.NewCatalogInfo(gen.Catalog()),
		},
		requests: requests,
		log:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients: map[string]chan []byte{},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		id, name := s.handshake(conn)
		if id == "" {
			return
		}
		out := make(chan []byte, clientQueue)
		s.mu.Lock()
		s.clients[id] = out
		n := len(s.clients)
		s.mu.Unlock()
		logf(s.log, "ws: session %s (%s) connected, %d clients", id, name, n)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readDeadline))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			if reply := s.handleMessage(msg); reply != nil {
				b, _ := json.Marshal(reply)
				select {
				case out <- b:
				default:
				}
			}
		}

		s.mu.Lock()
		delete(s.clients, id)
		s.mu.Unlock()
		logf(s.log, "ws: session %s disconnected", id)
	}
}

// handleMessage applies one client message and returns an optional reply.
func (s *Server) handleMessage(msg []byte) any {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return protocol.NewError(protocol.ErrProtoBadRequest, "invalid json")
	}
	if base.Type != protocol.TypeVisible {
		return protocol.NewError(protocol.ErrBadRequest, "unsupported message type "+base.Type)
	}
	var vis protocol.VisibleMsg
	if err := json.Unmarshal(msg, &vis); err != nil {
		return protocol.NewError(protocol.ErrProtoBadRequest, err.Error())
	}
	if vis.ProtocolVersion != protocol.Version {
		return protocol.NewError(protocol.ErrProtoVersion, "protocol_version must be "+protocol.Version)
	}
	if len(vis.Sectors) > maxVisiblePerMsg {
		return protocol.NewError(protocol.ErrRateLimit, "too many sectors in one VISIBLE")
	}
	if s.requests == nil {
		return nil
	}
	for _, ref := range vis.Sectors {
		s.requests.Request(sector.New(ref.X, ref.Y))
	}
	return nil
}

func (s *Server) handshake(conn *websocket.Conn) (id, name string) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeDeadline))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", ""
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", ""
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", ""
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", ""
	}
	if hello.ClientName == "" {
		hello.ClientName = "renderer"
	}

	welcome := s.welcome
	welcome.SessionID = uuid.NewString()
	if err := writeJSON(conn, welcome); err != nil {
		return "", ""
	}
	return welcome.SessionID, hello.ClientName
}

func (s *Server) EmitBatch(b vegetation.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.clients) == 0 {
		return nil
	}
	msg, err := json.Marshal(protocol.NewPlacements(b))
	if err != nil {
		return err
	}
	for _, out := range s.clients {
		select {
		case out <- msg:
			s.sent.Add(1)
		default:
			s.dropped.Add(1)
		}
	}
	return nil
}

func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Stats returns messages queued to clients and messages dropped for slow
// clients.
func (s *Server) Stats() (sent, dropped uint64) {
	return s.sent.Load(), s.dropped.Load()
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func logf(l *log.Logger, format string, args ...any) {
	if l != nil {
		l.Printf(format, args...)
	}
}
