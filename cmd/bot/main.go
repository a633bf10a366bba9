package main

import (
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"verdant.ai/internal/protocol"
)

// bot is a minimal renderer client: it announces a square of visible sectors
// and logs the placement batches it receives.
func main() {
	var (
		url    = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name   = flag.String("name", "bot", "client name")
		cx     = flag.Int("x", 0, "center sector x")
		cy     = flag.Int("y", 0, "center sector y")
		radius = flag.Int("radius", 1, "visible radius in sectors")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	var variants []protocol.VariantRef
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			variants = w.Catalog.Variants
			logger.Printf("WELCOME session=%s variants=%d placements/sector=%d chunk=%d",
				w.SessionID, len(variants), w.Generation.PlacementsPerSector, w.Generation.ChunkSize)
			if err := conn.WriteJSON(visibleSquare(*cx, *cy, *radius)); err != nil {
				logger.Fatalf("send VISIBLE: %v", err)
			}

		case protocol.TypePlacements:
			var p protocol.PlacementsMsg
			if err := json.Unmarshal(msg, &p); err != nil {
				continue
			}
			logger.Printf("PLACEMENTS sector=(%d,%d) n=%d digest=%s %v",
				p.Sector.X, p.Sector.Y, len(p.Placements), p.Digest, variantHistogram(p, variants))

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}
		}
	}
}

func visibleSquare(cx, cy, radius int) protocol.VisibleMsg {
	m := protocol.VisibleMsg{Type: protocol.TypeVisible, ProtocolVersion: protocol.Version}
	for dx := -radius; dx <= radius; dx++ {
		for dy := -radius; dy <= radius; dy++ {
			m.Sectors = append(m.Sectors, protocol.SectorRef{X: cx + dx, Y: cy + dy})
		}
	}
	return m
}

func variantHistogram(p protocol.PlacementsMsg, variants []protocol.VariantRef) map[string]int {
	out := map[string]int{}
	for _, pl := range p.Placements {
		name := "?"
		if pl.Variant >= 0 && pl.Variant < len(variants) {
			name = variants[pl.Variant].Name
		}
		out[name]++
	}
	return out
}
