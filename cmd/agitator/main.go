// Package main is a load generator: many WebSocket clients issuing random
// banking commands against a running bank-server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/network"
	"github.com/fracreserve/banksim/internal/platform/logger"
)

type Config struct {
	ServerURL      string
	APIURL         string
	NumClients     int
	NumBanks       int
	NumHouseholds  int
	Seed           bool
	ActionInterval time.Duration
	TestDuration   time.Duration
}

type Stats struct {
	MessagesSent     int64
	MessagesReceived int64
	Replies          int64
	Rejected         int64
	Errors           int64
	Latencies        []time.Duration
	mu               sync.Mutex
}

var commandTypes = []string{
	network.CmdDeposit,
	network.CmdGiveLoan,
	network.CmdRepayLoan,
	network.CmdBorrowFromBank,
	network.CmdRepayToBank,
	network.CmdFedLend,
	network.CmdFedRepay,
	network.CmdCheckReserve,
}

func main() {
	serverURL := flag.String("url", "ws://localhost:8080/ws", "WebSocket server URL")
	apiURL := flag.String("api", "http://localhost:8080/api", "REST base URL, used for seeding")
	numClients := flag.Int("clients", 50, "Number of concurrent clients")
	numBanks := flag.Int("banks", 10, "Number of banks to target")
	numHouseholds := flag.Int("households", 50, "Number of households to target")
	seed := flag.Bool("seed", true, "Register the banks and households before the run")
	interval := flag.Duration("interval", 100*time.Millisecond, "Action interval per client")
	duration := flag.Duration("duration", 60*time.Second, "Test duration")
	flag.Parse()

	config := Config{
		ServerURL:      *serverURL,
		APIURL:         *apiURL,
		NumClients:     *numClients,
		NumBanks:       *numBanks,
		NumHouseholds:  *numHouseholds,
		Seed:           *seed,
		ActionInterval: *interval,
		TestDuration:   *duration,
	}

	log := logger.NewLogger()
	defer log.Sync()

	log.Info("agitator starting",
		"server", config.ServerURL,
		"clients", config.NumClients,
		"interval", config.ActionInterval,
		"duration", config.TestDuration,
	)

	ctx, cancel := context.WithTimeout(context.Background(), config.TestDuration)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		log.Warn("interrupt received, stopping")
		cancel()
	}()

	if config.Seed {
		if err := seedAgents(ctx, config); err != nil {
			log.Error("seeding failed", "error", err)
			os.Exit(1)
		}
		log.Info("seeded agents", "banks", config.NumBanks, "households", config.NumHouseholds)
	}

	stats := runStressTest(ctx, config, log)
	printResults(stats, config)
}

// seedAgents registers default banks and households over REST.
func seedAgents(ctx context.Context, config Config) error {
	post := func(path string, body any) error {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, config.APIURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return fmt.Errorf("POST %s: status %d", path, resp.StatusCode)
		}
		return nil
	}

	for i := 0; i < config.NumBanks; i++ {
		if err := post("/banks", map[string]any{}); err != nil {
			return err
		}
	}
	for i := 0; i < config.NumHouseholds; i++ {
		if err := post("/households", map[string]any{}); err != nil {
			return err
		}
	}
	return nil
}

func runStressTest(ctx context.Context, config Config, log *logger.Logger) *Stats {
	stats := &Stats{
		Latencies: make([]time.Duration, 0, 10000),
	}

	var wg sync.WaitGroup
	for i := 0; i < config.NumClients; i++ {
		wg.Add(1)
		go func(clientID int) {
			defer wg.Done()
			runClient(ctx, clientID, config, stats, log)
		}(i)

		// Stagger client starts to avoid thundering herd
		time.Sleep(10 * time.Millisecond)
	}
	log.Info("all clients started", "clients", config.NumClients)

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Info("progress",
					"sent", atomic.LoadInt64(&stats.MessagesSent),
					"received", atomic.LoadInt64(&stats.MessagesReceived),
					"rejected", atomic.LoadInt64(&stats.Rejected),
					"errors", atomic.LoadInt64(&stats.Errors),
				)
			}
		}
	}()

	wg.Wait()
	return stats
}

func runClient(ctx context.Context, clientID int, config Config, stats *Stats, log *logger.Logger) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, config.ServerURL, nil)
	if err != nil {
		log.Warn("connection failed", "client", clientID, "error", err)
		atomic.AddInt64(&stats.Errors, 1)
		return
	}
	defer conn.Close()

	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(clientID)))

	var pendingMu sync.Mutex
	pending := make(map[string]time.Time)

	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			// The server batches queued messages with newlines.
			for _, line := range bytes.Split(data, []byte{'\n'}) {
				if len(line) == 0 {
					continue
				}
				atomic.AddInt64(&stats.MessagesReceived, 1)

				var reply network.Reply
				if json.Unmarshal(line, &reply) != nil || reply.Type != "REPLY" {
					continue
				}
				atomic.AddInt64(&stats.Replies, 1)
				if !reply.Success {
					atomic.AddInt64(&stats.Rejected, 1)
				}

				pendingMu.Lock()
				sent, ok := pending[reply.RequestID]
				delete(pending, reply.RequestID)
				pendingMu.Unlock()
				if ok {
					stats.mu.Lock()
					stats.Latencies = append(stats.Latencies, time.Since(sent))
					stats.mu.Unlock()
				}
			}
		}
	}()

	ticker := time.NewTicker(config.ActionInterval)
	defer ticker.Stop()

	seq := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			seq++
			cmd := generateRandomCommand(rng, config, fmt.Sprintf("c%d-%d", clientID, seq))

			pendingMu.Lock()
			pending[cmd.RequestID] = time.Now()
			pendingMu.Unlock()

			if err := conn.WriteJSON(cmd); err != nil {
				atomic.AddInt64(&stats.Errors, 1)
				return
			}
			atomic.AddInt64(&stats.MessagesSent, 1)
		}
	}
}

func generateRandomCommand(rng *rand.Rand, config Config, requestID string) network.Command {
	cmdType := commandTypes[rng.Intn(len(commandTypes))]

	bank := func() ident.ID { return ident.FirstBank + ident.ID(rng.Intn(max(config.NumBanks, 1))) }
	household := func() ident.ID {
		return ident.FirstHousehold + ident.ID(rng.Intn(max(config.NumHouseholds, 1)))
	}

	payload := map[string]interface{}{
		"amount": fmt.Sprintf("%d", rng.Intn(1_000_000)+1),
	}
	switch cmdType {
	case network.CmdDeposit, network.CmdGiveLoan, network.CmdRepayLoan:
		payload["household_id"] = household()
		payload["bank_id"] = bank()
	case network.CmdBorrowFromBank, network.CmdRepayToBank:
		payload["lender_id"] = bank()
		payload["borrower_id"] = bank()
	default:
		payload["bank_id"] = bank()
	}

	raw, _ := json.Marshal(payload)
	return network.Command{Type: cmdType, RequestID: requestID, Payload: raw}
}

func printResults(stats *Stats, config Config) {
	sent := atomic.LoadInt64(&stats.MessagesSent)
	recv := atomic.LoadInt64(&stats.MessagesReceived)
	replies := atomic.LoadInt64(&stats.Replies)
	rejected := atomic.LoadInt64(&stats.Rejected)
	errs := atomic.LoadInt64(&stats.Errors)
	throughput := float64(sent) / config.TestDuration.Seconds()

	fmt.Println("=========================================")
	fmt.Println("STRESS TEST RESULTS")
	fmt.Println("=========================================")
	fmt.Printf("Messages Sent:     %d\n", sent)
	fmt.Printf("Messages Received: %d\n", recv)
	fmt.Printf("Replies:           %d\n", replies)
	fmt.Printf("Rejected:          %d\n", rejected)
	fmt.Printf("Errors:            %d\n", errs)
	fmt.Printf("Error Rate:        %.2f%%\n", float64(errs)/float64(sent+1)*100)
	fmt.Printf("Throughput:        %.2f msg/sec\n", throughput)

	stats.mu.Lock()
	latencies := stats.Latencies
	stats.mu.Unlock()
	if len(latencies) > 0 {
		var total time.Duration
		lo, hi := latencies[0], latencies[0]
		for _, l := range latencies {
			total += l
			if l < lo {
				lo = l
			}
			if l > hi {
				hi = l
			}
		}
		fmt.Printf("\nRound-trip latency:\n")
		fmt.Printf("  Min: %v\n", lo)
		fmt.Printf("  Avg: %v\n", total/time.Duration(len(latencies)))
		fmt.Printf("  Max: %v\n", hi)
	}

	fmt.Println("\n-----------------------------------------")
	switch {
	case errs == 0 && replies > 0:
		fmt.Println("TEST PASSED: System handled the load")
	case float64(errs)/float64(sent+1) < 0.05:
		fmt.Println("TEST WARNING: Some errors detected")
	default:
		fmt.Println("TEST FAILED: High error rate")
	}

	results := map[string]interface{}{
		"messages_sent":      sent,
		"messages_received":  recv,
		"replies":            replies,
		"rejected":           rejected,
		"errors":             errs,
		"throughput_per_sec": throughput,
		"config": map[string]interface{}{
			"clients":  config.NumClients,
			"banks":    config.NumBanks,
			"interval": config.ActionInterval.String(),
			"duration": config.TestDuration.String(),
		},
	}
	jsonData, _ := json.MarshalIndent(results, "", "  ")
	if err := os.WriteFile("stress_test_results.json", jsonData, 0644); err == nil {
		fmt.Println("Results saved to stress_test_results.json")
	}
}
