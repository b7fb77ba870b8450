// txcheck validates a batch of transactions and prints the verdicts.
//
// Usage:
//
//	txcheck -in transactions.json
//	cat transactions.json | txcheck -url http://localhost:8080
//
// The input is a JSON array of transactions. Without -url the batch is
// validated in-process with thresholds from TXGUARD_* variables; with -url
// it is sent to a running service's POST /validate/batch.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/opensource-finance/txguard/internal/domain"
	"github.com/opensource-finance/txguard/internal/geo"
	"github.com/opensource-finance/txguard/internal/rules"
	"github.com/opensource-finance/txguard/internal/validator"
)

// errRejected signals that -strict was set and something was rejected.
var errRejected = errors.New("one or more transactions rejected")

type options struct {
	in        string
	url       string
	rulesFile string
	asJSON    bool
	strict    bool
	timeout   time.Duration
}

func main() {
	var opts options
	flag.StringVar(&opts.in, "in", "-", "JSON array of transactions (- for stdin)")
	flag.StringVar(&opts.url, "url", "", "txguard base URL; empty validates in-process")
	flag.StringVar(&opts.rulesFile, "rules", "", "JSON array of heuristic rules for in-process validation")
	flag.BoolVar(&opts.asJSON, "json", false, "print results as JSON instead of a table")
	flag.BoolVar(&opts.strict, "strict", false, "exit with status 2 when any transaction is rejected")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "request timeout with -url")
	flag.Parse()

	err := run(context.Background(), opts, os.Stdin, os.Stdout, os.Getenv)
	switch {
	case errors.Is(err, errRejected):
		os.Exit(2)
	case err != nil:
		fmt.Fprintf(os.Stderr, "txcheck: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout io.Writer, getenv func(string) string) error {
	txs, err := readTransactions(opts.in, stdin)
	if err != nil {
		return err
	}

	var results []*domain.ValidationResult
	if opts.url != "" {
		results, err = validateRemote(ctx, opts.url, opts.timeout, txs)
	} else {
		results, err = validateLocal(ctx, opts.rulesFile, txs, getenv)
	}
	if err != nil {
		return err
	}

	if opts.asJSON {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printTable(stdout, results)
	}

	if opts.strict {
		for _, r := range results {
			if !r.IsApproved() {
				return errRejected
			}
		}
	}
	return nil
}

func readTransactions(path string, stdin io.Reader) ([]*domain.Transaction, error) {
	var r io.Reader = stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input: %w", err)
		}
		defer f.Close()
		r = f
	}

	var txs []*domain.Transaction
	if err := json.NewDecoder(r).Decode(&txs); err != nil {
		return nil, fmt.Errorf("failed to parse transactions: %w", err)
	}
	return txs, nil
}

func validateLocal(ctx context.Context, rulesFile string, txs []*domain.Transaction, getenv func(string) string) ([]*domain.ValidationResult, error) {
	cfg, err := domain.LoadConfig(getenv)
	if err != nil {
		return nil, err
	}

	var opts []validator.Option
	if cfg.GeoRisk.Enabled {
		opts = append(opts, validator.WithHeuristics(geo.NewScorer()))
	}
	if rulesFile != "" {
		engine, err := loadEngine(rulesFile)
		if err != nil {
			return nil, err
		}
		engine.SetLocation(cfg.Validator.Fraud.OffHoursLocation)
		opts = append(opts, validator.WithHeuristics(engine))
	}

	v, err := validator.New(cfg.Validator, opts...)
	if err != nil {
		return nil, err
	}
	return v.ValidateBatch(ctx, txs), nil
}

func loadEngine(path string) (*rules.Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	var heuristics []*domain.HeuristicRule
	if err := json.Unmarshal(data, &heuristics); err != nil {
		return nil, fmt.Errorf("failed to parse rules: %w", err)
	}

	engine, err := rules.NewEngine(10)
	if err != nil {
		return nil, err
	}
	if err := engine.LoadRules(heuristics); err != nil {
		return nil, err
	}
	return engine, nil
}

func validateRemote(ctx context.Context, baseURL string, timeout time.Duration, txs []*domain.Transaction) ([]*domain.ValidationResult, error) {
	body, err := json.Marshal(txs)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := strings.TrimRight(baseURL, "/") + "/validate/batch"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var results []*domain.ValidationResult
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return results, nil
}

func printTable(w io.Writer, results []*domain.ValidationResult) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Transaction", "Verdict", "Score", "Risk", "Errors", "Warnings"})
	table.SetAutoWrapText(false)

	approved := 0
	for _, r := range results {
		verdict := "REJECTED"
		if r.IsApproved() {
			verdict = "APPROVED"
			approved++
		}

		errs := make([]string, 0, len(r.Errors))
		for _, e := range r.Errors {
			errs = append(errs, string(e.Kind))
		}

		table.Append([]string{
			r.TransactionID,
			verdict,
			strconv.Itoa(r.FraudScore),
			r.RiskLevel(),
			strings.Join(errs, ", "),
			strconv.Itoa(len(r.Warnings)),
		})
	}

	table.SetFooter([]string{"", fmt.Sprintf("%d/%d approved", approved, len(results)), "", "", "", ""})
	table.Render()
}
