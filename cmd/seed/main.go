// Seed tool for loading a synthetic transaction graph into Sentinel.
//
// Usage:
//   go run cmd/seed/main.go -url http://localhost:8080 -count 500
//
// This tool:
//   1. Generates a population of accounts, devices, and locations
//   2. Sends ordinary transfers through POST /transactions/analyze
//   3. Injects circular mule rings and fee-decay chains so the
//      pattern scan has something to find
//   4. Reports how the engine classified the injected traffic
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// AnalyzeRequest mirrors the Sentinel API request format.
type AnalyzeRequest struct {
	Amount           float64  `json:"amount"`
	UserID           string   `json:"user_id"`
	DeviceID         string   `json:"device_id,omitempty"`
	Location         string   `json:"location,omitempty"`
	IdentityAgeHours *float64 `json:"identity_age_hours,omitempty"`
	RecipientID      string   `json:"recipient_id,omitempty"`
}

// AnalyzeResponse mirrors the Sentinel API response format.
type AnalyzeResponse struct {
	ID        string  `json:"id"`
	Status    string  `json:"status"`
	FraudType string  `json:"fraud_type"`
	RiskScore float64 `json:"risk_score"`
}

// Metrics tracks seeding results.
type Metrics struct {
	Approved int64
	Review   int64
	Blocked  int64
	Errors   int64

	TotalSent int64
}

var locations = []string{
	"Lagos, VI", "Lagos, Ikeja", "Abuja, Wuse", "Port Harcourt",
	"Kano", "Ibadan", "Enugu", "Benin City",
}

func main() {
	// Parse flags
	baseURL := flag.String("url", "http://localhost:8080", "Sentinel base URL")
	count := flag.Int("count", 500, "Number of ordinary transactions to send")
	accounts := flag.Int("accounts", 50, "Size of the account population")
	rings := flag.Int("rings", 2, "Number of circular mule rings to inject")
	chains := flag.Int("chains", 2, "Number of fee-decay chains to inject")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	seed := flag.Int64("seed", time.Now().UnixNano(), "Random seed")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║            SENTINEL SEED - Synthetic Transaction Graph        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nSentinel URL: %s\n", *baseURL)
	fmt.Printf("Accounts:     %d\n", *accounts)
	fmt.Printf("Ordinary:     %d\n", *count)
	fmt.Printf("Mule Rings:   %d\n", *rings)
	fmt.Printf("Decay Chains: %d\n", *chains)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	// Check Sentinel is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Sentinel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Sentinel is running:")
		fmt.Println("  go run cmd/sentinel/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Sentinel is healthy")

	rng := rand.New(rand.NewSource(*seed))
	requests := buildRequests(rng, *accounts, *count, *rings, *chains)
	fmt.Printf("✓ Generated %d requests\n", len(requests))

	fmt.Printf("\nSeeding with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runSeed(requests, *baseURL, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// buildRequests generates the full workload: background noise first,
// then the injected patterns. Pattern legs stay above the scan floors
// so the detector can see them.
func buildRequests(rng *rand.Rand, accounts, count, rings, chains int) []AnalyzeRequest {
	var requests []AnalyzeRequest

	accountID := func(i int) string { return fmt.Sprintf("acc-%04d", i) }
	deviceID := func(i int) string { return fmt.Sprintf("dev-%03d", i%20) }

	// Ordinary transfers, mostly small and between random pairs
	for i := 0; i < count; i++ {
		from := rng.Intn(accounts)
		to := rng.Intn(accounts)
		if to == from {
			to = (to + 1) % accounts
		}

		req := AnalyzeRequest{
			Amount:      100 + rng.Float64()*40000,
			UserID:      accountID(from),
			DeviceID:    deviceID(from),
			Location:    locations[rng.Intn(len(locations))],
			RecipientID: accountID(to),
		}

		// A minority of senders have freshly enrolled identities
		if rng.Float64() < 0.1 {
			age := rng.Float64() * 12
			req.IdentityAgeHours = &age
		}

		requests = append(requests, req)
	}

	// Circular mule rings: three accounts passing large amounts around
	for r := 0; r < rings; r++ {
		a := accountID(accounts + r*3)
		b := accountID(accounts + r*3 + 1)
		c := accountID(accounts + r*3 + 2)

		for _, leg := range [][2]string{{a, b}, {b, c}, {c, a}} {
			requests = append(requests, AnalyzeRequest{
				Amount:      55000 + rng.Float64()*20000,
				UserID:      leg[0],
				RecipientID: leg[1],
				DeviceID:    deviceID(r),
				Location:    "Lagos, VI",
			})
		}
	}

	// Fee-decay chains: two hops losing a small cut in the middle
	base := accounts + rings*3
	for c := 0; c < chains; c++ {
		a := accountID(base + c*3)
		b := accountID(base + c*3 + 1)
		dest := accountID(base + c*3 + 2)

		first := 95000 + rng.Float64()*10000
		second := first - (1000 + rng.Float64()*3000)

		requests = append(requests,
			AnalyzeRequest{
				Amount:      first,
				UserID:      a,
				RecipientID: b,
				Location:    "Abuja, Wuse",
			},
			AnalyzeRequest{
				Amount:      second,
				UserID:      b,
				RecipientID: dest,
				Location:    "Abuja, Wuse",
			},
		)
	}

	return requests
}

func runSeed(requests []AnalyzeRequest, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan AnalyzeRequest, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for req := range work {
				result, err := analyzeTransaction(client, baseURL, req)
				atomic.AddInt64(&metrics.TotalSent, 1)

				if err != nil {
					atomic.AddInt64(&metrics.Errors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", req.UserID, err)
					}
					continue
				}

				switch result.Status {
				case "BLOCKED":
					atomic.AddInt64(&metrics.Blocked, 1)
				case "REVIEW":
					atomic.AddInt64(&metrics.Review, 1)
				default:
					atomic.AddInt64(&metrics.Approved, 1)
				}

				if verbose {
					fmt.Printf("%-8s | %-8s -> %-8s | ₦%10.2f | %-8s (%.2f) | %s\n",
						result.ID[:8],
						req.UserID,
						req.RecipientID,
						req.Amount,
						result.Status,
						result.RiskScore,
						result.FraudType,
					)
				}
			}
		}()
	}

	for _, req := range requests {
		work <- req
	}
	close(work)

	wg.Wait()

	return metrics
}

func analyzeTransaction(client *http.Client, baseURL string, req AnalyzeRequest) (*AnalyzeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/transactions/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                        SEED RESULTS                           ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DECISIONS\n")
	fmt.Printf("   Total Sent:  %d\n", m.TotalSent)
	fmt.Printf("   Approved:    %d\n", m.Approved)
	fmt.Printf("   Review:      %d\n", m.Review)
	fmt.Printf("   Blocked:     %d\n", m.Blocked)
	fmt.Printf("   Errors:      %d\n", m.Errors)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalSent > 0 {
		tps := float64(m.TotalSent) / duration.Seconds()
		fmt.Printf("   Throughput:       %.2f tx/sec\n", tps)
	}

	fmt.Println("\nNext: GET /graph/patterns to see what the scan found.")
	fmt.Println()
}
