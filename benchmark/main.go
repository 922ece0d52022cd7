// Package main provides a performance benchmarking tool for the raking CLI.
// It generates synthetic survey tables of increasing size, rakes each one
// several times without a cache and with the SQLite cache, treating the
// first cached run as cold and averaging the rest as warm, and writes the
// timings to CSV.
//
// Prerequisites:
// - raking binary installed and available in PATH
//
// Usage: go run benchmark/main.go [work-dir]
//
//	work-dir: Directory the synthetic tables are written to
package main

import (
	"encoding/csv"
	"fmt"
	"math/rand/v2"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult holds the result of a benchmark run (no-cache average, cold run and average of warm runs).
type BenchmarkResult struct {
	Table       string
	Respondents int
	NoCacheTime string
	ColdTime    string
	WarmTime    string
}

// BenchmarkConfig holds configuration for the benchmark run.
type BenchmarkConfig struct {
	WorkDir     string
	Timeout     time.Duration
	Workers     int
	NoCacheRuns int
	CacheRuns   int
	Sizes       []int
}

// Variables of the synthetic table and their population shares.
var variables = []struct {
	name       string
	categories []string
	shares     []float64
}{
	{"gender", []string{"M", "F"}, []float64{0.49, 0.51}},
	{"age", []string{"18-34", "35-54", "55+"}, []float64{0.3, 0.35, 0.35}},
	{"region", []string{"North", "South", "East", "West"}, []float64{0.2, 0.3, 0.25, 0.25}},
	{"education", []string{"HS", "College", "Graduate"}, []float64{0.4, 0.4, 0.2}},
}

func main() {
	if len(os.Args) != 2 {
		fmt.Printf("Usage: %s [work-dir]\n", os.Args[0])
		os.Exit(1)
	}

	config := BenchmarkConfig{
		WorkDir:     os.Args[1],
		Timeout:     5 * time.Minute,
		Workers:     8,
		NoCacheRuns: 3,
		CacheRuns:   4,
		Sizes:       []int{1_000, 10_000, 100_000, 1_000_000},
	}

	if err := checkPrerequisites(config); err != nil {
		fmt.Printf("Prerequisites check failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Clearing cache...\n")
	clearCmd := exec.Command("raking", "cache", "clear")
	if output, err := clearCmd.CombinedOutput(); err != nil {
		fmt.Printf("Warning: failed to clear cache: %v\nOutput: %s\n", err, string(output))
	} else {
		fmt.Printf("Cache cleared successfully\n")
	}

	results := runBenchmarks(config)

	if err := saveResults(results); err != nil {
		fmt.Printf("Failed to save results: %v\n", err)
		os.Exit(1)
	}

	printSummary(results)
}

// checkPrerequisites verifies that the raking binary exists and the work dir is usable.
func checkPrerequisites(config BenchmarkConfig) error {
	if _, err := exec.LookPath("raking"); err != nil {
		return fmt.Errorf("raking binary not found in PATH")
	}
	return os.MkdirAll(config.WorkDir, 0o755)
}

// runBenchmarks generates each table and times the rake command against it.
func runBenchmarks(config BenchmarkConfig) []BenchmarkResult {
	var results []BenchmarkResult

	fmt.Printf("Starting benchmark: %d sizes, %v timeout, %d workers, no-cache: %d runs, cache: %d runs\n",
		len(config.Sizes), config.Timeout, config.Workers, config.NoCacheRuns, config.CacheRuns)

	targetsPath := filepath.Join(config.WorkDir, "targets.yaml")
	if err := writeTargets(targetsPath); err != nil {
		fmt.Printf("Failed to write targets: %v\n", err)
		return nil
	}

	for _, n := range config.Sizes {
		tablePath := filepath.Join(config.WorkDir, fmt.Sprintf("survey_%d.csv", n))
		if err := writeTable(tablePath, n); err != nil {
			fmt.Printf("Failed to write table with %d rows: %v\n", n, err)
			continue
		}
		results = append(results, runBenchmarkSuite(config, tablePath, targetsPath, n))
	}
	return results
}

// runBenchmarkSuite runs both no-cache and cache benchmarks for one table.
func runBenchmarkSuite(config BenchmarkConfig, tablePath, targetsPath string, n int) BenchmarkResult {
	name := filepath.Base(tablePath)
	fmt.Printf("Raking %s\n", name)

	runPhase := func(cacheBackend string, numRuns int, phaseName string) (coldTime float64, avgTime string) {
		fmt.Printf("  %s phase (%d runs)\n", phaseName, numRuns)
		cold, times := runBenchmark(config, tablePath, targetsPath, cacheBackend, numRuns)
		if len(times) == 0 {
			avgTime = "TIMEOUT"
		} else {
			var sum float64
			for _, t := range times {
				sum += t
			}
			avgTime = fmt.Sprintf("%.3fs", sum/float64(len(times)))
		}
		return cold, avgTime
	}

	_, noCacheAvg := runPhase("none", config.NoCacheRuns, "No-cache")
	coldTime, warmAvg := runPhase("sqlite", config.CacheRuns, "Cache")

	coldTimeStr := "TIMEOUT"
	if coldTime > 0 {
		coldTimeStr = fmt.Sprintf("%.3fs", coldTime)
	}

	fmt.Printf("  No-cache average: %s, Cold time: %s, Warm average: %s\n", noCacheAvg, coldTimeStr, warmAvg)

	return BenchmarkResult{
		Table:       name,
		Respondents: n,
		NoCacheTime: noCacheAvg,
		ColdTime:    coldTimeStr,
		WarmTime:    warmAvg,
	}
}

// runBenchmark executes the rake command multiple times and returns the first time and the rest.
func runBenchmark(config BenchmarkConfig, tablePath, targetsPath, cacheBackend string, numRuns int) (coldTime float64, warmTimes []float64) {
	args := []string{
		"rake", tablePath,
		"--targets", targetsPath,
		"--cache-backend", cacheBackend,
		"--workers", strconv.Itoa(config.Workers),
		"--color", "no",
	}

	var times []float64
	for run := 1; run <= numRuns; run++ {
		start := time.Now()

		cmd := exec.Command("raking", args...)

		done := make(chan bool)
		var output []byte
		var cmdErr error

		go func() {
			output, cmdErr = cmd.CombinedOutput()
			done <- true
		}()

		select {
		case <-done:
			if cmdErr == nil && isSuccess(output) {
				times = append(times, time.Since(start).Seconds())
			}
		case <-time.After(config.Timeout):
			_ = cmd.Process.Kill()
		}
	}

	if len(times) > 0 {
		coldTime = times[0]
		warmTimes = times[1:]
	}
	return
}

// isSuccess checks if command output indicates successful completion.
func isSuccess(output []byte) bool {
	outputStr := string(output)
	return strings.Contains(outputStr, "Raked") &&
		strings.Contains(outputStr, "with") &&
		strings.Contains(outputStr, "workers")
}

// writeTargets writes the population shares as a shorthand YAML target file.
func writeTargets(path string) error {
	var b strings.Builder
	for _, v := range variables {
		fmt.Fprintf(&b, "%s:\n", v.name)
		for i, c := range v.categories {
			fmt.Fprintf(&b, "  %q: %g\n", c, v.shares[i])
		}
	}
	return os.WriteFile(path, []byte(b.String()), 0o644)
}

// writeTable writes n respondents drawn uniformly, so raking has work to do.
func writeTable(path string, n int) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()

	rng := rand.New(rand.NewPCG(42, uint64(n)))
	writer := csv.NewWriter(file)

	header := []string{"id"}
	for _, v := range variables {
		header = append(header, v.name)
	}
	if err := writer.Write(header); err != nil {
		return err
	}

	rec := make([]string, len(header))
	for i := range n {
		rec[0] = strconv.Itoa(i + 1)
		for j, v := range variables {
			rec[j+1] = v.categories[rng.IntN(len(v.categories))]
		}
		if err := writer.Write(rec); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// saveResults writes benchmark results to a timestamped CSV file.
func saveResults(results []BenchmarkResult) error {
	timestamp := time.Now().Format("20060102_150405")
	filename := fmt.Sprintf("/tmp/raking_benchmark_%s.csv", timestamp)

	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			fmt.Printf("Warning: failed to close file %s: %v\n", filename, closeErr)
		}
	}()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	if err := writer.Write([]string{"table", "respondents", "no_cache_avg", "cold_time", "warm_avg"}); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, result := range results {
		if err := writer.Write([]string{result.Table, strconv.Itoa(result.Respondents), result.NoCacheTime, result.ColdTime, result.WarmTime}); err != nil {
			return fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	fmt.Printf("Results saved to %s\n", filename)
	return nil
}

// printSummary displays the final benchmark results summary.
func printSummary(results []BenchmarkResult) {
	fmt.Printf("Benchmark complete\n")
	for _, result := range results {
		fmt.Printf("  %-22s: No-cache: %s, Cold: %s, Warm: %s\n", result.Table, result.NoCacheTime, result.ColdTime, result.WarmTime)
	}
}
