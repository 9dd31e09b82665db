package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"voxelstream.ai/internal/feedproto"
	"voxelstream.ai/internal/transport/feed"
)

// viewer is a headless feed consumer: it mirrors the atlas and index map
// and reports what it holds.
func main() {
	var (
		url   = flag.String("url", "ws://127.0.0.1:8090/feed/ws", "feed ws url")
		every = flag.Duration("every", 2*time.Second, "status interval")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[viewer] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := feedproto.SubscribeMsg{Type: feedproto.TypeSubscribe, ProtocolVersion: feedproto.Version}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))
		_ = conn.Close()
	}()

	m := feed.NewMirror()
	var frames int
	last := time.Now()
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			logger.Printf("feed closed: %v", err)
			return
		}
		if err := m.Apply(msg); err != nil {
			logger.Fatalf("inconsistent feed: %v", err)
		}
		frames++
		if time.Since(last) >= *every {
			last = time.Now()
			p := m.Params()
			centre, ok := m.Lookup([3]int{})
			logger.Printf("seq=%d frames=%d resident=%d/%d anchor=%v centre_slot=%d(%v)", m.Seq(), frames, m.Resident(), p.Slots, m.Anchor(), centre, ok)
		}
	}
}
