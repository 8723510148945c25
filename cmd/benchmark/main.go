// Benchmark tool for testing Kestrel against labeled procurement data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/labeled.csv -url http://localhost:8080
//
// This tool:
//   1. Reads procurement transactions (optionally with fraud labels)
//   2. Sends each transaction to Kestrel for scoring
//   3. Compares Kestrel's is_anomaly flag with the labels, when present
//   4. Calculates precision, recall, F1-score, and throughput
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// LabeledTransaction is one row of the benchmark dataset.
type LabeledTransaction struct {
	Amount          float64
	Agency          string
	Vendor          string
	TransactionTime string
	IsFraud         bool
	HasLabel        bool
}

// PredictRequest is the Kestrel API request format.
type PredictRequest struct {
	Amount          float64 `json:"amount"`
	Agency          string  `json:"agency"`
	Vendor          string  `json:"vendor,omitempty"`
	TransactionTime string  `json:"transaction_time,omitempty"`
}

// PredictResponse is the Kestrel API response format.
type PredictResponse struct {
	PredictionID string   `json:"prediction_id"`
	FraudScore   float64  `json:"fraud_score"`
	RiskScore    int      `json:"risk_score"`
	IsAnomaly    bool     `json:"is_anomaly"`
	Reasons      []string `json:"reasons"`
	Mode         string   `json:"scoring_mode"`
}

// Metrics tracks benchmark results.
type Metrics struct {
	TruePositives  int64 // Fraud flagged as anomaly
	FalsePositives int64 // Non-fraud flagged as anomaly
	TrueNegatives  int64 // Non-fraud passed
	FalseNegatives int64 // Fraud passed (missed fraud!)

	TotalProcessed int64
	TotalLabeled   int64
	TotalFlagged   int64
	TotalErrors    int64

	ProcessingTimeMs int64
}

func main() {
	csvPath := flag.String("csv", "", "Path to labeled procurement CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Kestrel base URL")
	limit := flag.Int("limit", 10000, "Maximum transactions to process (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each transaction result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/labeled.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("===============================================================")
	fmt.Println("        KESTREL BENCHMARK - Procurement Fraud Scoring")
	fmt.Println("===============================================================")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Kestrel URL: %s\n", *baseURL)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: Kestrel not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure Kestrel is running:")
		fmt.Println("  go run cmd/kestrel/main.go")
		os.Exit(1)
	}
	fmt.Println("Kestrel is healthy")

	fmt.Printf("\nReading transactions from %s...\n", *csvPath)
	transactions, err := readCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d transactions\n", len(transactions))

	fraudCount := 0
	labeled := 0
	for _, tx := range transactions {
		if tx.HasLabel {
			labeled++
			if tx.IsFraud {
				fraudCount++
			}
		}
	}
	if labeled > 0 {
		fmt.Printf("  - Labeled:   %d\n", labeled)
		fmt.Printf("  - Fraud:     %d (%.2f%%)\n", fraudCount, 100*float64(fraudCount)/float64(labeled))
	} else {
		fmt.Println("  - No fraud labels found; reporting throughput only")
	}

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(transactions, *baseURL, *workers, *verbose)
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

func readCSV(path string, limit int) ([]LabeledTransaction, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	amountCol, ok := colIndex["amount"]
	if !ok {
		return nil, fmt.Errorf("missing amount column")
	}
	agencyCol, ok := colIndex["agency"]
	if !ok {
		return nil, fmt.Errorf("missing agency column")
	}
	vendorCol, hasVendor := colIndex["vendor"]
	timeCol, hasTime := colIndex["transaction_time"]
	labelCol, hasLabel := colIndex["is_fraud"]

	var transactions []LabeledTransaction
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		amount, err := strconv.ParseFloat(strings.TrimSpace(record[amountCol]), 64)
		if err != nil || amount < 0 {
			continue
		}

		tx := LabeledTransaction{
			Amount: amount,
			Agency: strings.TrimSpace(record[agencyCol]),
		}
		if hasVendor {
			tx.Vendor = strings.TrimSpace(record[vendorCol])
		}
		if hasTime {
			tx.TransactionTime = strings.TrimSpace(record[timeCol])
		}
		if hasLabel {
			tx.HasLabel = true
			tx.IsFraud = record[labelCol] == "1" || strings.EqualFold(record[labelCol], "true")
		}

		transactions = append(transactions, tx)

		if limit > 0 && len(transactions) >= limit {
			break
		}
	}

	return transactions, nil
}

func runBenchmark(transactions []LabeledTransaction, baseURL string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	work := make(chan LabeledTransaction, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for tx := range work {
				start := time.Now()
				result, err := scoreTransaction(client, baseURL, tx)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", tx.Vendor, err)
					}
					continue
				}

				if result.IsAnomaly {
					atomic.AddInt64(&metrics.TotalFlagged, 1)
				}

				if tx.HasLabel {
					atomic.AddInt64(&metrics.TotalLabeled, 1)

					predicted := result.IsAnomaly
					actual := tx.IsFraud

					if predicted && actual {
						atomic.AddInt64(&metrics.TruePositives, 1)
					} else if predicted && !actual {
						atomic.AddInt64(&metrics.FalsePositives, 1)
					} else if !predicted && !actual {
						atomic.AddInt64(&metrics.TrueNegatives, 1)
					} else { // !predicted && actual
						atomic.AddInt64(&metrics.FalseNegatives, 1)
					}
				}

				if verbose {
					vendor := tx.Vendor
					if len(vendor) > 16 {
						vendor = vendor[:16]
					}
					fmt.Printf("%-16s | Amount: $%12.2f | Risk: %2d | Fraud: %.3f | Anomaly: %-5v | Mode: %s\n",
						vendor,
						tx.Amount,
						result.RiskScore,
						result.FraudScore,
						result.IsAnomaly,
						result.Mode,
					)
				}
			}
		}()
	}

	for _, tx := range transactions {
		work <- tx
	}
	close(work)

	wg.Wait()

	return metrics
}

func scoreTransaction(client *http.Client, baseURL string, tx LabeledTransaction) (*PredictResponse, error) {
	req := PredictRequest{
		Amount:          tx.Amount,
		Agency:          tx.Agency,
		Vendor:          tx.Vendor,
		TransactionTime: tx.TransactionTime,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/predict", bytes.NewReader(body))
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

	var result PredictResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	return &result, nil
}

func printResults(m *Metrics, duration time.Duration) {
	fmt.Println("\n===============================================================")
	fmt.Println("                      BENCHMARK RESULTS")
	fmt.Println("===============================================================")

	fmt.Printf("\nDATASET STATISTICS\n")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Total Labeled:    %d\n", m.TotalLabeled)
	fmt.Printf("   Total Flagged:    %d\n", m.TotalFlagged)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	if m.TotalLabeled > 0 {
		fmt.Printf("\nCONFUSION MATRIX\n")
		fmt.Printf("   True Positives:   %d (fraud caught)\n", m.TruePositives)
		fmt.Printf("   False Positives:  %d (false alarms)\n", m.FalsePositives)
		fmt.Printf("   True Negatives:   %d (correctly passed)\n", m.TrueNegatives)
		fmt.Printf("   False Negatives:  %d (missed fraud)\n", m.FalseNegatives)

		precision := 0.0
		if m.TruePositives+m.FalsePositives > 0 {
			precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
		}
		recall := 0.0
		if m.TruePositives+m.FalseNegatives > 0 {
			recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
		}
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}

		fmt.Printf("\nCLASSIFICATION METRICS\n")
		fmt.Printf("   Precision:        %.4f\n", precision)
		fmt.Printf("   Recall:           %.4f\n", recall)
		fmt.Printf("   F1-Score:         %.4f\n", f1)
	}

	fmt.Printf("\nPERFORMANCE\n")
	fmt.Printf("   Wall Time:        %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		fmt.Printf("   Throughput:       %.1f tx/sec\n", float64(m.TotalProcessed)/duration.Seconds())
		fmt.Printf("   Avg Latency:      %.1f ms\n", float64(m.ProcessingTimeMs)/float64(m.TotalProcessed))
	}
	fmt.Println()
}
