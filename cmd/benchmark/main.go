// Benchmark tool for testing GHOST against labeled communication data.
//
// Usage:
//   go run cmd/benchmark/main.go -csv /path/to/messages.csv -url http://localhost:8080
//
// The CSV needs a header row with at least conversation_key, timestamp, and
// text columns. An optional label column names the module a record should
// trigger (narcotics, domestic_violence, ...) or "clean".
//
// This tool:
//   1. Reads labeled communication records
//   2. Submits them to GHOST in one analysis run
//   3. Compares alerted (conversation, module) pairs with the labels
//   4. Calculates precision, recall, F1-score, and checks determinism
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
	"sort"
	"strconv"
	"strings"
	"time"
)

// LabeledRecord is a row from the benchmark dataset.
type LabeledRecord struct {
	ID              string
	ConversationKey string
	Direction       string
	Platform        string
	Text            string
	Timestamp       time.Time
	Label           string
}

// RecordInput is the GHOST API record format.
type RecordInput struct {
	ID              string    `json:"id"`
	Platform        string    `json:"platform,omitempty"`
	ConversationKey string    `json:"conversationKey"`
	Direction       string    `json:"direction,omitempty"`
	Text            string    `json:"text"`
	Timestamp       time.Time `json:"timestamp"`
}

// AnalyzeRequest is the GHOST API request format.
type AnalyzeRequest struct {
	CaseName string        `json:"caseName,omitempty"`
	Records  []RecordInput `json:"records"`
}

// AnalyzeResponse is the GHOST API response format.
type AnalyzeResponse struct {
	RunID   string `json:"runId"`
	Status  string `json:"status"`
	Summary struct {
		Alerts []struct {
			Module          string `json:"module"`
			ConversationKey string `json:"conversationKey"`
			Tier            string `json:"tier"`
			Score           int    `json:"score"`
			ImmediateAlert  bool   `json:"immediateAlert"`
		} `json:"alerts"`
		Truncated bool `json:"truncated"`
	} `json:"summary"`
	Metadata struct {
		TotalMs int64 `json:"totalMs"`
	} `json:"metadata"`
}

// Metrics tracks benchmark results over (conversation, module) pairs.
type Metrics struct {
	TruePositives  int // Labeled pair alerted
	FalsePositives int // Unlabeled pair alerted
	FalseNegatives int // Labeled pair missed
	QuietClean     int // Clean conversation with no alerts

	TotalRecords       int
	TotalConversations int
	LabeledPairs       int
}

func main() {
	// Parse flags
	csvPath := flag.String("csv", "", "Path to labeled message CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "GHOST base URL")
	caseID := flag.String("case", "benchmark-test", "Case ID for requests")
	limit := flag.Int("limit", 10000, "Maximum records to process (0 = all)")
	repeat := flag.Int("repeat", 3, "Number of identical runs (determinism check)")
	verbose := flag.Bool("verbose", false, "Print each alert")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv /path/to/messages.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║          GHOST BENCHMARK - Labeled Message Detection          ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nCSV File:   %s\n", *csvPath)
	fmt.Printf("GHOST URL:  %s\n", *baseURL)
	fmt.Printf("Case ID:    %s\n", *caseID)
	fmt.Printf("Limit:      %d\n", *limit)
	fmt.Printf("Repeat:     %d\n", *repeat)
	fmt.Println()

	// Check GHOST is running
	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: GHOST not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure GHOST is running:")
		fmt.Println("  go run cmd/ghost/main.go")
		os.Exit(1)
	}
	fmt.Println("✓ GHOST is healthy")

	// Read labeled data
	fmt.Printf("\nReading labeled records from %s...\n", *csvPath)
	records, err := readLabeledCSV(*csvPath, *limit)
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	if len(records) == 0 {
		fmt.Println("ERROR: no usable records in CSV")
		os.Exit(1)
	}
	fmt.Printf("✓ Loaded %d records\n", len(records))

	// Expected (conversation, module) pairs from the labels
	expected := make(map[string]map[string]bool)
	conversations := make(map[string]bool)
	labeledPairs := 0
	for _, rec := range records {
		conversations[rec.ConversationKey] = true
		label := strings.TrimSpace(strings.ToLower(rec.Label))
		if label == "" || label == "clean" {
			continue
		}
		if expected[rec.ConversationKey] == nil {
			expected[rec.ConversationKey] = make(map[string]bool)
		}
		if !expected[rec.ConversationKey][label] {
			expected[rec.ConversationKey][label] = true
			labeledPairs++
		}
	}
	fmt.Printf("  - Conversations: %d\n", len(conversations))
	fmt.Printf("  - Labeled pairs: %d\n", labeledPairs)

	// Run benchmark
	if *repeat < 1 {
		*repeat = 1
	}
	fmt.Printf("\nRunning %d analysis pass(es)...\n", *repeat)

	client := &http.Client{Timeout: 5 * time.Minute}
	var fingerprints []string
	var lastResp *AnalyzeResponse
	var totalMs int64
	startTime := time.Now()

	for i := 0; i < *repeat; i++ {
		resp, elapsed, err := analyze(client, *baseURL, *caseID, records)
		if err != nil {
			fmt.Printf("ERROR: analysis failed: %v\n", err)
			os.Exit(1)
		}
		totalMs += elapsed
		fingerprints = append(fingerprints, fingerprint(resp))
		lastResp = resp
		fmt.Printf("  pass %d: %d alerts in %d ms (status %s)\n", i+1, len(resp.Summary.Alerts), elapsed, resp.Status)
	}
	duration := time.Since(startTime)

	deterministic := true
	for _, fp := range fingerprints[1:] {
		if fp != fingerprints[0] {
			deterministic = false
			break
		}
	}

	if *verbose {
		fmt.Println("\nAlerts:")
		for _, a := range lastResp.Summary.Alerts {
			fmt.Printf("  %-22s %-20s tier=%-8s score=%-3d immediate=%v\n",
				a.ConversationKey, a.Module, a.Tier, a.Score, a.ImmediateAlert)
		}
	}

	metrics := scoreRun(lastResp, expected, conversations, len(records), labeledPairs)
	printResults(metrics, lastResp, duration, totalMs, *repeat, deterministic)
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

func readLabeledCSV(path string, limit int) ([]LabeledRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)

	// Read header
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	// Map column indices
	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}

	col := func(record []string, name string) string {
		i, ok := colIndex[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var records []LabeledRecord
	line := 0

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}
		line++

		conv := col(record, "conversation_key")
		if conv == "" {
			conv = col(record, "contact")
		}
		text := col(record, "text")
		if conv == "" || text == "" {
			continue
		}

		ts, ok := parseTimestamp(col(record, "timestamp"))
		if !ok {
			continue
		}

		id := col(record, "id")
		if id == "" {
			id = fmt.Sprintf("rec-%06d", line)
		}

		records = append(records, LabeledRecord{
			ID:              id,
			ConversationKey: conv,
			Direction:       col(record, "direction"),
			Platform:        col(record, "platform"),
			Text:            text,
			Timestamp:       ts,
			Label:           col(record, "label"),
		})

		if limit > 0 && len(records) >= limit {
			break
		}
	}

	return records, nil
}

// parseTimestamp accepts RFC3339 or unix seconds.
func parseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, true
	}
	if secs, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), true
	}
	return time.Time{}, false
}

func analyze(client *http.Client, baseURL, caseID string, records []LabeledRecord) (*AnalyzeResponse, int64, error) {
	req := AnalyzeRequest{CaseName: "benchmark"}
	for _, rec := range records {
		req.Records = append(req.Records, RecordInput{
			ID:              rec.ID,
			Platform:        rec.Platform,
			ConversationKey: rec.ConversationKey,
			Direction:       rec.Direction,
			Text:            rec.Text,
			Timestamp:       rec.Timestamp,
		})
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, 0, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/v1/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Case-ID", caseID)

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	elapsed := time.Since(start).Milliseconds()

	if resp.StatusCode != http.StatusOK {
		return nil, elapsed, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, elapsed, err
	}

	return &result, elapsed, nil
}

// fingerprint reduces a run's alerts to a canonical string for the
// determinism check.
func fingerprint(resp *AnalyzeResponse) string {
	parts := make([]string, 0, len(resp.Summary.Alerts))
	for _, a := range resp.Summary.Alerts {
		parts = append(parts, fmt.Sprintf("%s|%s|%s|%d|%v", a.ConversationKey, a.Module, a.Tier, a.Score, a.ImmediateAlert))
	}
	sort.Strings(parts)
	return strings.Join(parts, "\n")
}

func scoreRun(resp *AnalyzeResponse, expected map[string]map[string]bool, conversations map[string]bool, totalRecords, labeledPairs int) *Metrics {
	m := &Metrics{
		TotalRecords:       totalRecords,
		TotalConversations: len(conversations),
		LabeledPairs:       labeledPairs,
	}

	predicted := make(map[string]map[string]bool)
	for _, a := range resp.Summary.Alerts {
		if predicted[a.ConversationKey] == nil {
			predicted[a.ConversationKey] = make(map[string]bool)
		}
		predicted[a.ConversationKey][a.Module] = true
	}

	for conv := range conversations {
		actual := expected[conv]
		found := predicted[conv]

		for module := range actual {
			if found[module] {
				m.TruePositives++
			} else {
				m.FalseNegatives++
			}
		}
		for module := range found {
			if !actual[module] {
				m.FalsePositives++
			}
		}
		if len(actual) == 0 && len(found) == 0 {
			m.QuietClean++
		}
	}

	return m
}

func printResults(m *Metrics, resp *AnalyzeResponse, duration time.Duration, totalMs int64, passes int, deterministic bool) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n📊 DATASET STATISTICS\n")
	fmt.Printf("   Records:        %d\n", m.TotalRecords)
	fmt.Printf("   Conversations:  %d\n", m.TotalConversations)
	fmt.Printf("   Labeled Pairs:  %d\n", m.LabeledPairs)
	fmt.Printf("   Alerts:         %d\n", len(resp.Summary.Alerts))

	fmt.Printf("\n📈 DETECTION COUNTS (conversation, module)\n")
	fmt.Printf("   True Positives:   %d  (labeled and alerted)\n", m.TruePositives)
	fmt.Printf("   False Negatives:  %d  (labeled but missed)\n", m.FalseNegatives)
	fmt.Printf("   False Positives:  %d  (alerted without label)\n", m.FalsePositives)
	fmt.Printf("   Quiet Clean:      %d  (clean conversations, no alerts)\n", m.QuietClean)

	// Calculate metrics
	precision := float64(0)
	if m.TruePositives+m.FalsePositives > 0 {
		precision = float64(m.TruePositives) / float64(m.TruePositives+m.FalsePositives)
	}

	recall := float64(0)
	if m.TruePositives+m.FalseNegatives > 0 {
		recall = float64(m.TruePositives) / float64(m.TruePositives+m.FalseNegatives)
	}

	f1 := float64(0)
	if precision+recall > 0 {
		f1 = 2 * (precision * recall) / (precision + recall)
	}

	fmt.Printf("\n🎯 DETECTION METRICS\n")
	fmt.Printf("   Precision:  %.4f  (of alerts, how many were labeled)\n", precision)
	fmt.Printf("   Recall:     %.4f  (of labeled pairs, how many alerted)\n", recall)
	fmt.Printf("   F1-Score:   %.4f  (harmonic mean of precision & recall)\n", f1)

	fmt.Printf("\n⏱️  PERFORMANCE\n")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	fmt.Printf("   Avg Run Time:     %.2f ms\n", float64(totalMs)/float64(passes))
	if totalMs > 0 {
		rps := float64(m.TotalRecords*passes) / (float64(totalMs) / 1000.0)
		fmt.Printf("   Throughput:       %.2f records/sec\n", rps)
	}

	fmt.Printf("\n🔁 DETERMINISM\n")
	if passes < 2 {
		fmt.Println("   (single pass, not checked)")
	} else if deterministic {
		fmt.Printf("   ✅ %d passes produced identical alert sets\n", passes)
	} else {
		fmt.Printf("   ❌ alert sets differ across passes\n")
	}

	// Interpretation
	fmt.Printf("\n💡 INTERPRETATION\n")
	if recall >= 0.9 {
		fmt.Println("   ✅ Excellent recall - catching most labeled activity")
	} else if recall >= 0.7 {
		fmt.Println("   ⚠️  Good recall - but missing some labeled activity")
	} else if recall >= 0.5 {
		fmt.Println("   ⚠️  Moderate recall - significant labeled activity missed")
	} else {
		fmt.Println("   ❌ Poor recall - most labeled activity is being missed!")
	}

	if precision >= 0.5 {
		fmt.Println("   ✅ Good precision - alerts are meaningful")
	} else if precision >= 0.2 {
		fmt.Println("   ⚠️  Low precision - many false alarms")
	} else {
		fmt.Println("   ❌ Very low precision - mostly false alarms")
	}

	if resp.Summary.Truncated {
		fmt.Println("   ⚠️  Run was truncated - raise the analysis timeout")
	}

	fmt.Println()
}
