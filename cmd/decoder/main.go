// Command decoder connects to the engine's dashboard WebSocket and
// prints every pipeline event (ticks, trades, log lines, latency
// updates) in human-readable form.
//
// Usage:
//
//	decoder                              # connect to localhost:9090, print everything
//	decoder -url ws://host:9090/feed      # custom endpoint
//	decoder -types tick,trade             # only print these event types
//	decoder -stats 10                     # print message rate stats every N seconds
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// wireEvent mirrors internal/session's dashboard-facing JSON envelope.
type wireEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func main() {
	url := flag.String("url", "ws://localhost:9090/feed", "WebSocket endpoint")
	types := flag.String("types", "*", "Comma-separated event types to print, or * for all")
	statsInterval := flag.Int("stats", 0, "Print message rate stats every N seconds (0 = off)")
	flag.Parse()

	log.SetFlags(log.Ltime | log.Lmicroseconds)

	wanted := map[string]bool{}
	if *types != "*" {
		for _, t := range strings.Split(*types, ",") {
			wanted[strings.ToLower(strings.TrimSpace(t))] = true
		}
	}

	log.Printf("connecting to %s", *url)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		log.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	log.Println("connected")

	var msgCount uint64
	if *statsInterval > 0 {
		go func() {
			ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
			defer ticker.Stop()
			var last uint64
			for range ticker.C {
				cur := atomic.LoadUint64(&msgCount)
				delta := cur - last
				rate := float64(delta) / float64(*statsInterval)
				log.Printf("[stats] %d events total | %.1f events/sec", cur, rate)
				last = cur
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("shutting down...")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		time.Sleep(200 * time.Millisecond)
		os.Exit(0)
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			log.Fatalf("read: %v", err)
		}
		atomic.AddUint64(&msgCount, 1)

		var e wireEvent
		if err := json.Unmarshal(data, &e); err != nil {
			fmt.Printf("??? unparsable frame (%d bytes): %v\n", len(data), err)
			continue
		}
		if len(wanted) > 0 && !wanted[strings.ToLower(e.Type)] {
			continue
		}
		fmt.Printf("%-8s %s  %s\n", strings.ToUpper(e.Type), time.Now().Format("15:04:05.000000"), string(e.Data))
	}
}
