package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gorilla/websocket"

	"crystalpets.ai/internal/observerproto"
)

func main() {
	var (
		url    = flag.String("url", "ws://127.0.0.1:8080/admin/v1/observer/ws", "observer ws url")
		every  = flag.Int("every", 10, "receive one TICK per N ticks (events are always delivered)")
		field  = flag.Bool("field", false, "include crystal/pet/claim lists")
		events = flag.Bool("events", true, "log field events")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[watch] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	sub := observerproto.SubscribeMsg{
		Type:            observerproto.TypeSubscribe,
		ProtocolVersion: observerproto.Version,
		EveryTicks:      *every,
		IncludeField:    *field,
	}
	if err := conn.WriteJSON(sub); err != nil {
		logger.Fatalf("send SUBSCRIBE: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		_ = conn.Close()
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var t observerproto.TickMsg
		if err := json.Unmarshal(msg, &t); err != nil || t.Type != observerproto.TypeTick {
			continue
		}
		logger.Print(describeTick(&t, *events))
	}
}

func describeTick(t *observerproto.TickMsg, withEvents bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "tick=%d tier=%d capacity=%.1f next_cost=%d coins=%d", t.Tick, t.Progression.Tier, t.Progression.Capacity, t.Progression.UpgradeCost, t.Coins)
	if len(t.Crystals) > 0 || len(t.Pets) > 0 {
		fmt.Fprintf(&b, " crystals=%d pets=%d claims=%d", len(t.Crystals), len(t.Pets), len(t.Claims))
	}
	if !withEvents {
		return b.String()
	}
	for _, e := range t.Events {
		switch e.Kind {
		case "TIER_CHANGED":
			fmt.Fprintf(&b, " | %s %d->%d capacity=%.1f upgraded=%v", e.Kind, e.PrevTier, e.Tier, e.Capacity, e.Upgraded)
		case "PET_LEFT":
			fmt.Fprintf(&b, " | %s %s abrupt=%v", e.Kind, e.PetID, e.Abrupt)
		case "PET_JOINED":
			fmt.Fprintf(&b, " | %s %s", e.Kind, e.PetID)
		default:
			fmt.Fprintf(&b, " | %s %s", e.Kind, e.CrystalID)
		}
	}
	return b.String()
}
