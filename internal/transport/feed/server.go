// Package feed pushes encoded chunk frames to websocket consumers.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"

	"voxelstream.ai/internal/feedproto"
	"voxelstream.ai/internal/stream/upload"
)

type Options struct {
	Queue       int  // per-client frame backlog before the client is dropped
	AllowRemote bool // accept non-loopback peers
}

type client struct {
	id  string
	out chan []byte
}

// Server fans published frames out to subscribers. It keeps the latest
// frame per slot and the latest index map so a late subscriber can rebuild
// the full atlas before it sees live traffic.
type Server struct {
	params feedproto.StreamParams
	opts   Options
	log    *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	dropped  atomic.Uint64

	mu       deadlock.Mutex
	seq      uint64
	clients  map[string]*client
	resident map[int][]byte
	indexMap []byte
}

func NewServer(params feedproto.StreamParams, opts Options, logger *log.Logger) *Server {
	if opts.Queue <= 0 {
		opts.Queue = 256
	}
	return &Server{
		params: params,
		opts:   opts,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
		clients:  map[string]*client{},
		resident: map[int][]byte{},
	}
}

// Clients is the number of live subscribers.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Dropped counts subscribers disconnected for falling behind.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

// Publish implements driver.Sink.
func (s *Server) Publish(frames []upload.Frame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	for _, f := range frames {
		b, err := json.Marshal(frameMsg(s.seq, f))
		if err != nil {
			s.logf("marshal %s frame for slot %d: %v", f.Kind, f.Slot, err)
			continue
		}
		if f.Kind == upload.KindIndexMap {
			s.indexMap = b
		} else {
			s.resident[f.Slot] = b
		}
		for id, c := range s.clients {
			select {
			case c.out <- b:
			default:
				// A gap would leave the consumer's atlas inconsistent; make
				// it reconnect and replay instead.
				close(c.out)
				delete(s.clients, id)
				s.dropped.Add(1)
				s.logf("feed %s fell behind, disconnecting", id)
			}
		}
	}
}

func frameMsg(seq uint64, f upload.Frame) feedproto.FrameMsg {
	return feedproto.FrameMsg{
		Type:            feedproto.TypeFrame,
		ProtocolVersion: feedproto.Version,
		Seq:             seq,
		Frame:           f,
	}
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		s.mu.Lock()
		seq := s.seq
		s.mu.Unlock()
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(feedproto.BootstrapResponse{
			ProtocolVersion: feedproto.Version,
			Seq:             seq,
			Params:          s.params,
		})
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !s.allowed(r) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var sub feedproto.SubscribeMsg
		if err := json.Unmarshal(msg, &sub); err != nil || sub.Type != feedproto.TypeSubscribe || sub.ProtocolVersion != feedproto.Version {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		c, err := s.join()
		if err != nil {
			s.logf("feed join: %v", err)
			return
		}
		defer s.leave(c.id)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine.
		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b, ok := <-c.out:
					if !ok {
						_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "too slow"), time.Now().Add(time.Second))
						_ = conn.Close()
						writeErr <- nil
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: the feed is one-way, reads only detect disconnects.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		// Best-effort wait for the writer to stop so it doesn't outlive conn.
		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

// join registers a subscriber and queues HELLO, every resident chunk in
// slot order, then the current index map.
func (s *Server) join() (*client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := &client{id: fmt.Sprintf("F%d", s.nextID.Add(1))}
	hello, err := json.Marshal(feedproto.HelloMsg{
		Type:            feedproto.TypeHello,
		ProtocolVersion: feedproto.Version,
		SessionID:       c.id,
		Params:          s.params,
	})
	if err != nil {
		return nil, err
	}

	c.out = make(chan []byte, s.opts.Queue+len(s.resident)+2)
	c.out <- hello
	slots := make([]int, 0, len(s.resident))
	for slot := range s.resident {
		slots = append(slots, slot)
	}
	sort.Ints(slots)
	for _, slot := range slots {
		c.out <- s.resident[slot]
	}
	if s.indexMap != nil {
		c.out <- s.indexMap
	}
	s.clients[c.id] = c
	return c, nil
}

func (s *Server) leave(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[id]; ok {
		delete(s.clients, id)
	}
}

func (s *Server) allowed(r *http.Request) bool {
	return s.opts.AllowRemote || isLoopbackRemote(r.RemoteAddr)
}

func (s *Server) logf(format string, args ...any) {
	if s.log != nil {
		s.log.Printf(format, args...)
	}
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
