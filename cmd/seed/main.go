// Seed tool for generating synthetic transaction CSVs.
//
// Usage:
//   go run cmd/seed/main.go -customer CUST-1001 -band Critical -out sample.csv
//   go run cmd/seed/main.go -customer CUST-1001 -band High -upload http://localhost:8080
//
// The generated file follows the upload contract: one customer per file,
// required columns customer_id/date/amount/type plus the optional ones.
// Risk bands shape the data: Critical customers get drifting salary
// dates, shrinking salary amounts, and a heavy share of lending app and
// ATM activity, so the scored profile lands in the requested band.
package main

import (
	"bytes"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

var names = []string{
	"Arjun Sharma", "Priya Patel", "Vikram Mehta", "Sneha Rao", "Rahul Gupta",
	"Ananya Singh", "Rohit Kumar", "Kavita Nair", "Suresh Iyer", "Deepa Joshi",
	"Arun Verma", "Meena Reddy", "Kiran Bose", "Pooja Agarwal", "Ravi Pillai",
}

var creditCategories = []string{"salary", "transfer", "refund", "interest", "cashback"}

var debitCategories = []string{
	"grocery", "utility", "dining", "shopping", "atm_withdrawal",
	"loan_repayment", "entertainment", "transfer", "insurance",
}

var highRiskDebitCategories = []string{"lending_app", "atm_withdrawal", "gambling", "loan_app"}

var channels = []string{"UPI", "Card", "NetBanking", "ATM", "AutoDebit", "Cash"}

type row struct {
	id       string
	date     time.Time
	amount   int
	txnType  string
	category string
	balance  int
	merchant string
	channel  string
}

func main() {
	customerID := flag.String("customer", "CUST-1001", "customer id for the generated file")
	band := flag.String("band", "Medium", "target risk band: Low, Medium, High, Critical")
	days := flag.Int("days", 90, "history window in days")
	count := flag.Int("count", 120, "number of transactions to generate")
	salary := flag.Bool("salary", true, "include monthly salary credits")
	seed := flag.Int64("seed", 0, "random seed (0 uses current time)")
	out := flag.String("out", "", "output file path (default stdout)")
	upload := flag.String("upload", "", "POST the CSV to this server's /ingest instead of writing a file")
	flag.Parse()

	switch *band {
	case "Low", "Medium", "High", "Critical":
	default:
		fmt.Fprintf(os.Stderr, "invalid band %q: must be Low, Medium, High, or Critical\n", *band)
		os.Exit(1)
	}

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))

	csvData := generate(rng, *customerID, *band, *days, *count, *salary)

	if *upload != "" {
		if err := post(*upload, csvData); err != nil {
			fmt.Fprintf(os.Stderr, "upload failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if *out == "" {
		fmt.Print(csvData)
		return
	}
	if err := os.WriteFile(*out, []byte(csvData), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("wrote %s (%s, %s band)\n", *out, *customerID, *band)
}

func generate(rng *rand.Rand, customerID, band string, days, count int, includeSalary bool) string {
	nameIdx := int(customerID[len(customerID)-1]) % len(names)
	customerName := names[nameIdx]

	today := time.Now().Truncate(24 * time.Hour)
	start := today.AddDate(0, 0, -days)

	var balance int
	switch band {
	case "Critical":
		balance = 8000
	case "High":
		balance = 15000
	case "Medium":
		balance = 30000
	default:
		balance = 60000
	}

	var avgSalary float64
	switch band {
	case "Critical":
		avgSalary = 25000
	case "High":
		avgSalary = 35000
	case "Medium":
		avgSalary = 45000
	default:
		avgSalary = 60000
	}

	var rows []row
	months := int(math.Ceil(float64(days) / 30))

	// Monthly salary credits. Riskier bands drift later and shrink
	// month over month, which drives the salary delay and drop signals.
	if includeSalary {
		for m := 0; m < months; m++ {
			baseDay := 5
			switch band {
			case "Critical":
				baseDay = 12 + m*4
			case "High":
				baseDay = 5 + m*2
			}
			salaryDate := start.AddDate(0, 0, m*30+baseDay)
			if salaryDate.After(today) {
				continue
			}
			amount := avgSalary
			switch band {
			case "Critical":
				amount = avgSalary * (1 - 0.15*float64(m))
			case "High":
				amount = avgSalary * (1 - 0.05*float64(m))
			}
			amt := int(math.Round(math.Max(amount, 15000)))
			balance += amt
			rows = append(rows, row{
				id:       genID(rng),
				date:     salaryDate,
				amount:   amt,
				txnType:  "credit",
				category: "salary",
				balance:  balance,
				merchant: "Employer Corp",
				channel:  "NetBanking",
			})
		}
	}

	// Monthly EMI. Critical customers drift past their expected debit
	// day, which drives the missed repayment signal.
	if band != "Low" {
		for m := 0; m < months; m++ {
			repayDay := 10
			if band == "Critical" {
				repayDay = 12 + m*5
			}
			repayDate := start.AddDate(0, 0, m*30+repayDay)
			if repayDate.After(today) {
				continue
			}
			balance -= 8000
			rows = append(rows, row{
				id:       genID(rng),
				date:     repayDate,
				amount:   8000,
				txnType:  "debit",
				category: "loan_repayment",
				balance:  balance,
				merchant: "Bank EMI",
				channel:  "AutoDebit",
			})
		}
	}

	// Fill the remainder with everyday activity spread across the window.
	remaining := count - len(rows)
	spread := float64(days) / math.Max(float64(remaining), 1)

	for i := 0; i < remaining; i++ {
		dayOffset := int(math.Round(float64(i)*spread + rng.Float64()*spread))
		if dayOffset > days-1 {
			dayOffset = days - 1
		}
		txnDate := start.AddDate(0, 0, dayOffset)

		isDebit := rng.Float64() > 0.3
		var category, channel string
		var amount int

		if isDebit {
			switch {
			case band == "Critical" && rng.Float64() > 0.5:
				category = highRiskDebitCategories[rng.Intn(len(highRiskDebitCategories))]
			case band == "High" && rng.Float64() > 0.65:
				category = highRiskDebitCategories[rng.Intn(2)]
			default:
				category = debitCategories[rng.Intn(len(debitCategories))]
			}
			if band == "Critical" {
				amount = int(math.Round(rng.Float64()*8000 + 500))
			} else {
				amount = int(math.Round(rng.Float64()*5000 + 200))
			}
			if strings.Contains(category, "atm") {
				channel = "ATM"
			} else {
				channel = channels[rng.Intn(len(channels))]
			}
			balance -= amount
		} else {
			category = creditCategories[rng.Intn(len(creditCategories))]
			amount = int(math.Round(rng.Float64()*3000 + 100))
			channel = channels[rng.Intn(len(channels))]
			balance += amount
		}

		txnType := "credit"
		if isDebit {
			txnType = "debit"
		}
		displayBalance := balance
		if displayBalance < 0 {
			displayBalance = 0
		}
		rows = append(rows, row{
			id:       genID(rng),
			date:     txnDate,
			amount:   amount,
			txnType:  txnType,
			category: category,
			balance:  displayBalance,
			merchant: titleCase(category) + " Merchant",
			channel:  channel,
		})
	}

	// The parser sorts anyway, but a sorted file reads better.
	for i := 1; i < len(rows); i++ {
		for j := i; j > 0 && rows[j].date.Before(rows[j-1].date); j-- {
			rows[j], rows[j-1] = rows[j-1], rows[j]
		}
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"transaction_id", "customer_id", "customer_name", "date", "amount",
		"type", "category", "balance", "merchant", "channel",
	})
	for _, r := range rows {
		_ = w.Write([]string{
			r.id, customerID, customerName, r.date.Format("2006-01-02"),
			strconv.Itoa(r.amount), r.txnType, r.category,
			strconv.Itoa(r.balance), r.merchant, r.channel,
		})
	}
	w.Flush()
	return buf.String()
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func genID(rng *rand.Rand) string {
	const alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	b := make([]byte, 5)
	for i := range b {
		b[i] = alphabet[rng.Intn(len(alphabet))]
	}
	return fmt.Sprintf("TXN-%d-%s", time.Now().UnixMilli(), string(b))
}

func post(serverURL, csvData string) error {
	url := strings.TrimRight(serverURL, "/") + "/ingest"
	resp, err := http.Post(url, "text/csv", strings.NewReader(csvData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(body))
	}
	fmt.Println(string(body))
	return nil
}
