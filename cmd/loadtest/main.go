// Load test tool for exercising the Churnistic eligibility pipeline.
//
// Usage:
//   go run cmd/loadtest/main.go -url http://localhost:8080 -requests 10000
//
// This tool:
//   1. Seeds a set of synthetic cards via the cards API
//   2. Fires concurrent eligibility checks across synthetic users
//   3. Optionally submits applications for eligible results
//   4. Reports eligible/blocked breakdown, latency, and throughput
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

// CheckRequest is the eligibility API request format
type CheckRequest struct {
	CardID      string `json:"cardId"`
	CreditScore *int   `json:"creditScore,omitempty"`
}

// CheckResponse is the eligibility API response format
type CheckResponse struct {
	Eligible   bool        `json:"eligible"`
	Violations []Violation `json:"violations"`
}

type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// SeedCard is the card payload used to populate the catalog
type SeedCard struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Issuer         string  `json:"issuer"`
	AnnualFee      float64 `json:"annualFee"`
	SignupBonus    float64 `json:"signupBonus"`
	MinSpend       float64 `json:"minSpend"`
	MinSpendPeriod int     `json:"minSpendPeriod"`
	BusinessCard   bool    `json:"businessCard"`
	CreditScoreMin *int    `json:"creditScoreMin,omitempty"`
	IsActive       bool    `json:"isActive"`
}

// Metrics tracks load test results
type Metrics struct {
	TotalChecks   int64
	Eligible      int64
	Blocked       int64
	Applications  int64
	ApplyRejected int64
	TotalErrors   int64

	ProcessingTimeMs int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "Churnistic base URL")
	requests := flag.Int("requests", 10000, "Total eligibility checks to send")
	users := flag.Int("users", 500, "Number of synthetic users")
	numCards := flag.Int("cards", 20, "Number of synthetic cards to seed")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	applyRate := flag.Float64("apply", 0.1, "Fraction of eligible checks followed by an application (0.0-1.0)")
	verbose := flag.Bool("verbose", false, "Print each check result")
	flag.Parse()

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          CHURNISTIC LOAD TEST - Eligibility Pipeline          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTarget URL:  %s\n", *baseURL)
	fmt.Printf("Requests:    %d\n", *requests)
	fmt.Printf("Users:       %d\n", *users)
	fmt.Printf("Cards:       %d\n", *numCards)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Apply Rate:  %.2f\n", *applyRate)
	fmt.Println()

	// Check the server is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Churnistic not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Churnistic is running:")
		fmt.Println("  go run cmd/churnistic/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ Churnistic is healthy")

	// Seed cards
	fmt.Printf("\nSeeding %d cards...\n", *numCards)
	cardIDs, err := seedCards(*baseURL, *numCards)
	if err != nil {
		fmt.Printf("ERROR: Failed to seed cards: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Seeded %d cards\n", len(cardIDs))

	// Run the load test
	fmt.Printf("\nRunning load test with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runLoadTest(*baseURL, cardIDs, *users, *requests, *workers, *applyRate, *verbose)
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

var issuers = []string{"Chase", "Amex", "Citi", "Capital One", "Barclays"}

func seedCards(baseURL string, count int) ([]string, error) {
	client := &http.Client{Timeout: 10 * time.Second}
	ids := make([]string, 0, count)

	for i := 0; i < count; i++ {
		issuer := issuers[i%len(issuers)]
		var minScore *int
		if i%3 == 0 {
			score := 680 + 10*(i%4)
			minScore = &score
		}
		card := SeedCard{
			ID:             fmt.Sprintf("loadtest-card-%03d", i),
			Name:           fmt.Sprintf("%s Rewards %d", issuer, i),
			Issuer:         issuer,
			AnnualFee:      float64(95 * (i % 3)),
			SignupBonus:    float64(50000 + 10000*(i%5)),
			MinSpend:       3000 + float64(1000*(i%4)),
			MinSpendPeriod: 90,
			BusinessCard:   i%7 == 0,
			CreditScoreMin: minScore,
			IsActive:       true,
		}

		body, err := json.Marshal(card)
		if err != nil {
			return nil, err
		}

		req, err := http.NewRequest(http.MethodPost, baseURL+"/cards", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-User-ID", "loadtest-admin")

		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return nil, fmt.Errorf("seeding card %s: status %d", card.ID, resp.StatusCode)
		}

		ids = append(ids, card.ID)
	}

	return ids, nil
}

func runLoadTest(baseURL string, cardIDs []string, users, requests, numWorkers int, applyRate float64, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan int, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}
			rng := rand.New(rand.NewSource(seed))

			for range work {
				userID := fmt.Sprintf("loadtest-user-%04d", rng.Intn(users))
				cardID := cardIDs[rng.Intn(len(cardIDs))]

				// Half the checks supply a self-reported credit score
				var score *int
				if rng.Intn(2) == 0 {
					s := 650 + rng.Intn(150)
					score = &s
				}

				start := time.Now()
				result, err := checkEligibility(client, baseURL, userID, cardID, score)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalChecks, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s / %s -> %v\n", userID, cardID, err)
					}
					continue
				}

				if result.Eligible {
					atomic.AddInt64(&metrics.Eligible, 1)

					if applyRate > 0 && rng.Float64() < applyRate {
						if err := applyForCard(client, baseURL, userID, cardID); err != nil {
							atomic.AddInt64(&metrics.ApplyRejected, 1)
						} else {
							atomic.AddInt64(&metrics.Applications, 1)
						}
					}
				} else {
					atomic.AddInt64(&metrics.Blocked, 1)
				}

				if verbose {
					status := "ELIGIBLE"
					detail := ""
					if !result.Eligible {
						status = "BLOCKED"
						if len(result.Violations) > 0 {
							detail = result.Violations[0].Message
						}
					}
					fmt.Printf("%-18s | %-18s | %-8s | %dms | %s\n",
						userID, cardID, status, elapsed, detail)
				}
			}
		}(int64(i))
	}

	for i := 0; i < requests; i++ {
		work <- i
	}
	close(work)

	wg.Wait()

	return metrics
}

func checkEligibility(client *http.Client, baseURL, userID, cardID string, creditScore *int) (*CheckResponse, error) {
	body, err := json.Marshal(CheckRequest{CardID: cardID, CreditScore: creditScore})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/eligibility/check", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result CheckResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func applyForCard(client *http.Client, baseURL, userID, cardID string) error {
	body, err := json.Marshal(map[string]string{"cardId": cardID})
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+"/applications", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      LOAD TEST RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 CHECK OUTCOMES\n")
	fmt.Printf("   Total Checks:     %d\n", m.TotalChecks)
	fmt.Printf("   Eligible:         %d\n", m.Eligible)
	fmt.Printf("   Blocked:          %d\n", m.Blocked)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	fmt.Printf("\n📝 APPLICATIONS\n")
	fmt.Printf("   Submitted:        %d\n", m.Applications)
	fmt.Printf("   Rejected:         %d\n", m.ApplyRejected)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalChecks > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalChecks)
		rps := float64(m.TotalChecks) / duration.Seconds()
		fmt.Printf("   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Printf("   Throughput:       %.2f req/sec\n", rps)
	}

	blockRate := float64(0)
	if m.TotalChecks > 0 {
		blockRate = float64(m.Blocked) / float64(m.TotalChecks) * 100
	}
	fmt.Printf("\n💡 INTERPRETATION\n")
	fmt.Printf("   Block Rate:       %.2f%%\n", blockRate)
	if m.TotalErrors > 0 {
		fmt.Println("   ⚠️  Errors occurred - check server logs")
	} else {
		fmt.Println("   ✅ No errors")
	}

	fmt.Println()
}
