package ingest

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestParseValidFile(t *testing.T) {
	csv := `customer_id,date,amount,type,category,balance,merchant,channel
CUST-001,2024-01-15,500,debit,shopping,9500,Amazon,Card
CUST-001,2024-01-05,50000,credit,salary,10000,Acme Corp,NetBanking
CUST-001,2024-01-20,200,debit,dining,9300,Cafe,UPI
`
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.RawRows != 3 {
		t.Errorf("expected 3 raw rows, got %d", result.RawRows)
	}
	if len(result.Transactions) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(result.Transactions))
	}

	// Sorted ascending by date regardless of upload order.
	if got := result.Transactions[0].DateString(); got != "2024-01-05" {
		t.Errorf("expected first transaction on 2024-01-05, got %s", got)
	}
	if got := result.Transactions[2].DateString(); got != "2024-01-20" {
		t.Errorf("expected last transaction on 2024-01-20, got %s", got)
	}

	first := result.Transactions[0]
	if first.Type != domain.DirectionCredit {
		t.Errorf("expected credit, got %s", first.Type)
	}
	if first.Amount != 50000 {
		t.Errorf("expected amount 50000, got %f", first.Amount)
	}
	if first.Channel != domain.ChannelNetBanking {
		t.Errorf("expected NetBanking channel, got %s", first.Channel)
	}
}

func TestParseMissingRequiredColumns(t *testing.T) {
	tests := []struct {
		name    string
		csv     string
		wantErr string
	}{
		{
			name:    "missing customer_id",
			csv:     "date,amount,type\n2024-01-01,100,debit\n",
			wantErr: "customer_id",
		},
		{
			name:    "missing date",
			csv:     "customer_id,amount,type\nCUST-001,100,debit\n",
			wantErr: "date",
		},
		{
			name:    "missing amount",
			csv:     "customer_id,date,type\nCUST-001,2024-01-01,debit\n",
			wantErr: "amount",
		},
		{
			name:    "missing type",
			csv:     "customer_id,date,amount\nCUST-001,2024-01-01,100\n",
			wantErr: "type",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse(strings.NewReader(tt.csv))
			if len(result.Errors) != 1 {
				t.Fatalf("expected 1 error, got %v", result.Errors)
			}
			if !strings.Contains(result.Errors[0], tt.wantErr) {
				t.Errorf("error %q does not mention %q", result.Errors[0], tt.wantErr)
			}
			if len(result.Transactions) != 0 {
				t.Errorf("expected zero transactions on fatal error, got %d", len(result.Transactions))
			}
		})
	}
}

func TestParseMultipleCustomersRejected(t *testing.T) {
	csv := `customer_id,date,amount,type
CUST-001,2024-01-01,100,debit
CUST-002,2024-01-02,200,credit
`
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) == 0 {
		t.Fatal("expected error for multiple customer ids")
	}
	if !strings.Contains(result.Errors[0], "CUST-001") || !strings.Contains(result.Errors[0], "CUST-002") {
		t.Errorf("error should name both customer ids: %q", result.Errors[0])
	}
	if len(result.Transactions) != 0 {
		t.Error("expected zero transactions on fatal error")
	}
}

func TestParseHeaderNormalization(t *testing.T) {
	csv := "Customer ID,  Date ,AMOUNT,Type\nCUST-001,2024-01-01,100,debit\n"
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Transactions) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(result.Transactions))
	}
}

func TestParseDateFormats(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"iso", "2024-03-05", "2024-03-05"},
		{"dmy slash", "05/03/2024", "2024-03-05"},
		{"dmy dash", "05-03-2024", "2024-03-05"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			csv := "customer_id,date,amount,type\nCUST-001," + tt.raw + ",100,debit\n"
			result := Parse(strings.NewReader(csv))
			if len(result.Errors) != 0 {
				t.Fatalf("unexpected errors: %v", result.Errors)
			}
			if got := result.Transactions[0].DateString(); got != tt.want {
				t.Errorf("date %q parsed to %s, want %s", tt.raw, got, tt.want)
			}
		})
	}
}

func TestParseInvalidDateFatal(t *testing.T) {
	csv := `customer_id,date,amount,type
CUST-001,2024-01-01,100,debit
CUST-001,not-a-date,200,credit
`
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "Row 3") {
		t.Errorf("error should reference row 3: %q", result.Errors[0])
	}
	if len(result.Transactions) != 0 {
		t.Error("expected zero transactions after row-level fatal error")
	}
}

func TestParseAmountCleaning(t *testing.T) {
	csv := "customer_id,date,amount,type\nCUST-001,2024-01-01,\"₹1,500.50\",debit\n"
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if got := result.Transactions[0].Amount; got != 1500.50 {
		t.Errorf("expected amount 1500.50, got %f", got)
	}
}

func TestParseInvalidTypeFatal(t *testing.T) {
	csv := "customer_id,date,amount,type\nCUST-001,2024-01-01,100,transfer\n"
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error, got %v", result.Errors)
	}
	if !strings.Contains(result.Errors[0], "credit") {
		t.Errorf("error should explain valid types: %q", result.Errors[0])
	}
}

func TestParseTypeCaseInsensitive(t *testing.T) {
	csv := "customer_id,date,amount,type\nCUST-001,2024-01-01,100,DEBIT\n"
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if result.Transactions[0].Type != domain.DirectionDebit {
		t.Errorf("expected debit, got %s", result.Transactions[0].Type)
	}
}

func TestParseEmptyCustomerIDSkipped(t *testing.T) {
	csv := `customer_id,date,amount,type
CUST-001,2024-01-01,100,debit
,2024-01-02,200,credit
CUST-001,2024-01-03,300,debit
`
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if len(result.Transactions) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(result.Transactions))
	}
	found := false
	for _, w := range result.Warnings {
		if strings.Contains(w, "Row 3") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a skip warning for row 3, got %v", result.Warnings)
	}
}

func TestParseDefaults(t *testing.T) {
	csv := "customer_id,date,amount,type\nCUST-001,2024-01-01,100,debit\n"
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	txn := result.Transactions[0]
	if txn.Category != "other" {
		t.Errorf("expected default category 'other', got %q", txn.Category)
	}
	if txn.Merchant != "Unknown Merchant" {
		t.Errorf("expected default merchant, got %q", txn.Merchant)
	}
	if txn.Channel != domain.ChannelUPI {
		t.Errorf("expected default channel UPI, got %s", txn.Channel)
	}
	if txn.ID == "" {
		t.Error("expected a generated transaction id")
	}

	// Optional-column warnings are advisory, one per missing column.
	if len(result.Warnings) != 4 {
		t.Errorf("expected 4 warnings for missing optional columns, got %v", result.Warnings)
	}
}

func TestParseDerivedBalance(t *testing.T) {
	csv := `customer_id,date,amount,type
CUST-001,2024-01-01,1000,credit
CUST-001,2024-01-02,300,debit
`
	result := Parse(strings.NewReader(csv))

	if len(result.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", result.Errors)
	}
	if got := result.Transactions[0].Balance; got != 1000 {
		t.Errorf("expected balance 1000 after credit, got %f", got)
	}
	if got := result.Transactions[1].Balance; got != 700 {
		t.Errorf("expected balance 700 after debit, got %f", got)
	}
}

func TestParseEmptyFile(t *testing.T) {
	for _, input := range []string{"", "customer_id,date,amount,type\n"} {
		result := Parse(strings.NewReader(input))
		if len(result.Errors) == 0 {
			t.Errorf("expected error for input %q", input)
		}
	}
}

func TestParseErrType(t *testing.T) {
	result := Parse(strings.NewReader("date,amount,type\n2024-01-01,100,debit\n"))
	err := result.Err()
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "customer_id") {
		t.Errorf("error message should carry the structural error: %v", err)
	}
}
