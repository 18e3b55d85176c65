package main

import (
	"context"
	"log"
	"os"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/park285/linebox-server/internal/adminhttp"
	"github.com/park285/linebox-server/pkg/linedto"
)

func main() {
	adminURL := os.Getenv("LINEBOX_ADMIN_URL")
	wsURL := os.Getenv("LINEBOX_WS_URL")

	if adminURL == "" {
		log.Fatal("LINEBOX_ADMIN_URL is required")
	}

	client := adminhttp.NewClient(adminURL, adminhttp.WithTimeout(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Healthy(ctx); err != nil {
		log.Fatalf("/healthz error: %v", err)
	}
	stats, err := client.Stats(ctx)
	if err != nil {
		log.Printf("/stats error: %v", err)
	} else {
		log.Printf("/stats ok: sessions=%d queued=%d connections=%d", stats.Sessions, stats.Queued, stats.Connections)
	}

	if wsURL == "" {
		log.Println("LINEBOX_WS_URL not set; skipping WS check")
		return
	}

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	conn, _, err := websocket.Dial(cctx, wsURL, &websocket.DialOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		log.Fatalf("WS connect error: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "check done")

	join := map[string]any{"type": linedto.IntentJoinQueue, "data": linedto.JoinQueueRequest{Name: "linebox-check"}}
	if err := wsjson.Write(cctx, conn, join); err != nil {
		log.Fatalf("WS write error: %v", err)
	}
	var reply struct {
		Type      string         `json:"type"`
		SessionID string         `json:"session_id"`
		Data      map[string]any `json:"data"`
	}
	if err := wsjson.Read(cctx, conn, &reply); err != nil {
		log.Fatalf("WS read error: %v", err)
	}
	log.Printf("WS reply type=%s session=%s data=%v", reply.Type, reply.SessionID, reply.Data)

	// Release the queue slot.
	if err := wsjson.Write(cctx, conn, map[string]any{"type": linedto.IntentLeave}); err != nil {
		log.Printf("WS leave error: %v", err)
	}
}
