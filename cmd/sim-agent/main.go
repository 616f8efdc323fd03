// ABOUTME: Minimal simulated agent for E2E testing, connects over WebSocket and answers the handshake.
// ABOUTME: Usage: sim-agent [-addr localhost:8080] [-type cline] [-id sim-1]

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/contextd/agentgate/internal/protocol"
	"github.com/contextd/agentgate/internal/transport"
)

func main() {
	addr := flag.String("addr", "localhost:8080", "gateway HTTP address")
	agentType := flag.String("type", "cline", "agent type")
	agentID := flag.String("id", "sim-1", "agent id")
	token := flag.String("token", "", "bearer token for credentialed agent types")
	flag.Parse()

	if err := run(*addr, *agentType, *agentID, *token); err != nil {
		log.Fatal(err)
	}
}

func run(addr, agentType, agentID, token string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	url := fmt.Sprintf("ws://%s/ws?agent_id=%s&agent_type=%s", addr, agentID, agentType)
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	tr, err := transport.Dial(ctx, url, header)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer tr.Close()

	fmt.Fprintf(os.Stderr, "connected as %s (%s)\n", agentID, agentType)

	// After the handshake completes, poke the catalog endpoints so the
	// session produces some observable traffic.
	exercised := false

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-tr.Errors():
			return fmt.Errorf("transport error: %w", err)
		case msg, ok := <-tr.Receive():
			if !ok {
				return nil
			}

			switch {
			case msg.IsRequest() && msg.Method == protocol.MethodInitialize:
				result := protocol.InitializeResult{
					ProtocolVersion: protocol.Version,
					Capabilities:    protocol.DefaultCapabilities(),
					ServerInfo:      protocol.Implementation{Name: "sim-agent", Version: "dev"},
				}
				resp, err := protocol.NewResponse(msg.ID, result)
				if err != nil {
					return fmt.Errorf("building initialize response: %w", err)
				}
				if err := tr.Send(ctx, resp); err != nil {
					return fmt.Errorf("sending initialize response: %w", err)
				}
				log.Printf("handshake complete (protocol %s)", protocol.Version)

				if !exercised {
					exercised = true
					go exercise(ctx, tr)
				}

			case msg.IsNotification() && msg.Method == protocol.MethodHeartbeat:
				log.Printf("heartbeat")

			case msg.IsResponse():
				if msg.Error != nil {
					log.Printf("response [%s]: error %d: %s", msg.IDString(), msg.Error.Code, msg.Error.Message)
				} else {
					log.Printf("response [%s]: %s", msg.IDString(), string(msg.Result))
				}
			}
		}
	}
}

// exercise issues a few catalog requests with a small delay between them.
func exercise(ctx context.Context, tr transport.Transport) {
	requests := []struct {
		id     string
		method string
		params any
	}{
		{"sim-resources", protocol.MethodResourcesList, nil},
		{"sim-tools", protocol.MethodToolsList, nil},
	}

	for _, r := range requests {
		time.Sleep(200 * time.Millisecond)
		msg, err := protocol.NewRequest(r.id, r.method, r.params)
		if err != nil {
			log.Printf("building %s request: %v", r.method, err)
			continue
		}
		if err := tr.Send(ctx, msg); err != nil {
			log.Printf("sending %s request: %v", r.method, err)
			return
		}
	}
}
