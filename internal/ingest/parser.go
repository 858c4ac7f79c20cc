// Package ingest parses raw CSV transaction uploads into validated,
// date-sorted transaction batches.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// ParseResult is the parser output: either a validated single-customer
// batch, or a non-empty error list and zero transactions. Warnings are
// advisory and never block downstream scoring.
type ParseResult struct {
	Transactions []domain.Transaction `json:"transactions"`
	Errors       []string             `json:"errors"`
	Warnings     []string             `json:"warnings"`
	RawRows      int                  `json:"rawRows"`
}

// Err returns a ParseError when the result carries fatal errors.
func (r *ParseResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return &ParseError{Errors: r.Errors, Warnings: r.Warnings}
}

// ParseError carries the human-readable structural error list for a
// rejected upload.
type ParseError struct {
	Errors   []string
	Warnings []string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("csv rejected: %s", strings.Join(e.Errors, "; "))
}

var (
	isoDateRe    = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	dmyDateRe    = regexp.MustCompile(`^(\d{2})[/-](\d{2})[/-](\d{4})$`)
	nonNumericRe = regexp.MustCompile(`[^0-9.\-]`)
)

// fallbackLayouts are tried in order when a date is neither yyyy-mm-dd
// nor dd/mm/yyyy.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006/01/02",
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	if isoDateRe.MatchString(raw) {
		d, err := time.Parse("2006-01-02", raw)
		return d, err == nil
	}
	if m := dmyDateRe.FindStringSubmatch(raw); m != nil {
		d, err := time.Parse("2006-01-02", fmt.Sprintf("%s-%s-%s", m[3], m[2], m[1]))
		return d, err == nil
	}
	for _, layout := range fallbackLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.UTC().Truncate(24 * time.Hour), true
		}
	}
	return time.Time{}, false
}

func parseAmount(raw string) (float64, bool) {
	cleaned := nonNumericRe.ReplaceAllString(strings.TrimSpace(raw), "")
	v, err := strconv.ParseFloat(cleaned, 64)
	return v, err == nil
}

// normalizeHeader trims, lower-cases, and collapses internal whitespace
// runs to single underscores.
func normalizeHeader(h string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(h))), "_")
}

func generateTxnID() string {
	return "TXN-" + strings.ToUpper(uuid.NewString()[:8])
}

// Parse reads a CSV upload and returns the validated transaction batch.
// Structural errors (missing required column, multiple customer ids,
// unparseable date/amount/type) are fatal: parsing halts immediately and
// zero transactions are returned so no partial batch can reach scoring.
func Parse(r io.Reader) *ParseResult {
	result := &ParseResult{}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	records, err := reader.ReadAll()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("Malformed CSV: %v", err))
		return result
	}

	if len(records) == 0 {
		result.Errors = append(result.Errors, "CSV file is empty.")
		return result
	}

	headerIdx := make(map[string]int, len(records[0]))
	for i, h := range records[0] {
		name := normalizeHeader(h)
		if _, ok := headerIdx[name]; !ok {
			headerIdx[name] = i
		}
	}

	rows := records[1:]
	// Drop fully blank records the way most CSV tooling does.
	filtered := rows[:0]
	for _, row := range rows {
		blank := true
		for _, cell := range row {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			filtered = append(filtered, row)
		}
	}
	rows = filtered
	result.RawRows = len(rows)

	if len(rows) == 0 {
		result.Errors = append(result.Errors, "CSV file is empty.")
		return result
	}

	has := func(col string) bool {
		_, ok := headerIdx[col]
		return ok
	}
	field := func(row []string, col string) string {
		idx, ok := headerIdx[col]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	// Required columns, checked fail-fast.
	if !has("customer_id") {
		result.Errors = append(result.Errors, "Missing required column: customer_id")
		return result
	}
	if !has("date") {
		result.Errors = append(result.Errors, "Missing required column: date (format: yyyy-mm-dd)")
		return result
	}
	if !has("amount") {
		result.Errors = append(result.Errors, "Missing required column: amount")
		return result
	}
	if !has("type") {
		result.Errors = append(result.Errors, "Missing required column: type (credit/debit)")
		return result
	}

	// Exactly one distinct non-empty customer id per upload.
	var customerIDs []string
	seen := make(map[string]bool)
	for _, row := range rows {
		id := field(row, "customer_id")
		if id != "" && !seen[id] {
			seen[id] = true
			customerIDs = append(customerIDs, id)
		}
	}
	if len(customerIDs) > 1 {
		result.Errors = append(result.Errors, fmt.Sprintf(
			"Upload must contain only one customer_id per file. Found: %s",
			strings.Join(customerIDs, ", ")))
		return result
	}
	if len(customerIDs) == 0 {
		result.Errors = append(result.Errors, "No valid customer_id found in file.")
		return result
	}

	if !has("balance") {
		result.Warnings = append(result.Warnings, "Column 'balance' missing. Running balance will be computed from transactions.")
	}
	if !has("category") {
		result.Warnings = append(result.Warnings, "Column 'category' missing. Defaulting to 'other'.")
	}
	if !has("merchant") {
		result.Warnings = append(result.Warnings, "Column 'merchant' missing. Defaulting to 'Unknown Merchant'.")
	}
	if !has("channel") {
		result.Warnings = append(result.Warnings, "Column 'channel' missing. Defaulting to 'UPI'.")
	}

	var transactions []domain.Transaction
	var runningBalance float64

	for i, row := range rows {
		rowNum := i + 2 // header is row 1

		customerID := field(row, "customer_id")
		if customerID == "" {
			result.Warnings = append(result.Warnings, fmt.Sprintf("Row %d: Empty customer_id, skipping.", rowNum))
			continue
		}

		dateRaw := field(row, "date")
		date, ok := parseDate(dateRaw)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"Row %d: Invalid date %q. Expected format: yyyy-mm-dd", rowNum, dateRaw))
			return result
		}

		amountRaw := field(row, "amount")
		amount, ok := parseAmount(amountRaw)
		if !ok {
			result.Errors = append(result.Errors, fmt.Sprintf("Row %d: Invalid amount %q", rowNum, amountRaw))
			return result
		}

		typeRaw := strings.ToLower(field(row, "type"))
		if typeRaw != string(domain.DirectionCredit) && typeRaw != string(domain.DirectionDebit) {
			result.Errors = append(result.Errors, fmt.Sprintf(
				"Row %d: Invalid type %q. Must be \"credit\" or \"debit\"", rowNum, field(row, "type")))
			return result
		}
		direction := domain.Direction(typeRaw)

		signed := amount
		if direction == domain.DirectionDebit {
			signed = -amount
		}

		var balance float64
		if raw := field(row, "balance"); has("balance") && raw != "" {
			if v, ok := parseAmount(raw); ok {
				balance = v
			} else {
				balance = runningBalance + signed
			}
		} else {
			balance = runningBalance + signed
		}
		// Explicit balances feed the running balance for later derived rows.
		runningBalance = balance

		category := strings.ToLower(field(row, "category"))
		if category == "" {
			category = "other"
		}
		merchant := field(row, "merchant")
		if merchant == "" {
			merchant = "Unknown Merchant"
		}

		txnID := field(row, "transaction_id")
		if txnID == "" {
			txnID = generateTxnID()
		}

		transactions = append(transactions, domain.Transaction{
			ID:         txnID,
			CustomerID: customerID,
			Date:       date,
			Amount:     amount,
			Type:       direction,
			Category:   category,
			Balance:    balance,
			Merchant:   merchant,
			Channel:    domain.ParseChannel(field(row, "channel")),
		})
	}

	// Stable ascending date sort; ties keep upload order.
	sort.SliceStable(transactions, func(i, j int) bool {
		return transactions[i].Date.Before(transactions[j].Date)
	})

	result.Transactions = transactions
	return result
}
