package fixture

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/jask/bookkeeper/internal/database"
)

var sampleCategories = []string{
	"Auto:Fuel",
	"Dining",
	"Entertainment",
	"Groceries",
	"Health",
	"Income",
	"Shopping",
	"Subscriptions",
	"Transport",
	"Uncategorized",
	"Utilities",
}

var samplePayees = []string{
	"SAFEWAY #1234",
	"SHELL OIL 57442",
	"SQ *BLUE BOTTLE COFFEE",
	"AMZN Mktp US*2K4L11",
	"NETFLIX.COM",
	"PG&E WEB ONLINE",
	"UBER *TRIP HELP.UBER.COM",
	"ACME CORP PAYROLL",
	"TST* LA TAQUERIA",
	"CVS/PHARMACY #09876",
}

// Sample returns a small package worth of data ending on the given day:
// two accounts, the sample categories plus one system tag, and thirty
// transactions of which the first few are already categorized.
func Sample(end civil.Date) Dataset {
	m := database.NewMapper(time.Local)
	ds := Dataset{
		Accounts: []Account{
			{ID: 1, Name: "Everyday Checking", Type: "CHECKING", Note: "x4821"},
			{ID: 2, Name: "Rewards Visa", Type: "CREDITCARD", Note: "Visa ending 9910"},
		},
	}
	for i, name := range samplePayees {
		ds.Payees = append(ds.Payees, Payee{ID: int64(i + 1), Name: name})
	}
	for i, name := range sampleCategories {
		ds.Tags = append(ds.Tags, Tag{ID: int64(i + 1), Name: name, Assignable: true})
	}
	ds.Tags = append(ds.Tags, Tag{ID: int64(len(sampleCategories) + 1), Name: "Transfer:Internal", Assignable: false})

	amounts := []float64{-84.12, -41.5, -6.25, -23.99, -15.49, -112.8, -18.4, 2450, -12.75, -9.99}
	for i := 0; i < 30; i++ {
		day := end.AddDays(-i)
		entered := m.ToEpoch(day, database.BoundaryStart) + 9*3600
		p := i % len(samplePayees)
		t := Transaction{
			ID:        int64(i + 1),
			AccountID: int64(i%2 + 1),
			PayeeID:   int64(p + 1),
			Entered:   Float(entered),
			Amount:    Float(amounts[p]),
		}
		if i%3 == 0 {
			t.Posted = Float(entered + 86400)
		}
		if p == 7 {
			t.Note = "Direct deposit"
		}
		ds.Transactions = append(ds.Transactions, t)
	}
	// Groceries (tag 4) for the first Safeway purchase.
	ds.Entries = append(ds.Entries, Entry{ID: 1, ParentID: 1, TagID: 4, Amount: amounts[0]})
	return ds
}
