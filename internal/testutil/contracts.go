package testutil

import (
	"bytes"
	"encoding/csv"
	"testing"
)

// ContractColumns is the header of a facts source file.
var ContractColumns = []string{
	"reference_id", "contract_number", "award_title", "notice_title",
	"awardee_name", "organization_name", "area_of_delivery", "business_category",
	"contract_amount", "award_date", "award_status",
}

// Contract is one row of a facts source file. Amount and Date are kept as
// text so fixtures can exercise the builder's parsing.
type Contract struct {
	RefID        string
	Number       string
	Title        string
	NoticeTitle  string
	Contractor   string
	Organization string
	Area         string
	Category     string
	Amount       string
	Date         string
	Status       string
}

func (c Contract) record() []string {
	status := c.Status
	if status == "" {
		status = "awarded"
	}
	return []string{
		c.RefID, c.Number, c.Title, c.NoticeTitle,
		c.Contractor, c.Organization, c.Area, c.Category,
		c.Amount, c.Date, status,
	}
}

// ContractsCSV renders contracts as a facts CSV with a header row.
func ContractsCSV(t *testing.T, contracts []Contract) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(ContractColumns); err != nil {
		t.Fatalf("write header: %v", err)
	}
	for _, c := range contracts {
		if err := w.Write(c.record()); err != nil {
			t.Fatalf("write contract %s: %v", c.RefID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		t.Fatalf("flush csv: %v", err)
	}
	return buf.Bytes()
}

// WriteContractsCSV writes contracts to dir/name and returns the path.
func WriteContractsCSV(t *testing.T, dir, name string, contracts []Contract) string {
	t.Helper()
	return WriteFile(t, dir, name, ContractsCSV(t, contracts))
}

// AcmeContracts is a small fixture spanning 2020 and 2021: three ACME CORP
// awards (two in 2020) plus contracts for other contractors.
func AcmeContracts() []Contract {
	return []Contract{
		{RefID: "R-001", Number: "C-1", Title: "Road widening", NoticeTitle: "Widening of national road",
			Contractor: "ACME CORP", Organization: "DPWH Region VII", Area: "Cebu", Category: "Civil Works",
			Amount: "100.00", Date: "2020-03-01"},
		{RefID: "R-002", Number: "C-2", Title: "Drainage canal", NoticeTitle: "Flood control drainage",
			Contractor: "ACME CORP", Organization: "DPWH Region VII", Area: "Bohol", Category: "Civil Works",
			Amount: "200.00", Date: "2020-07-01"},
		{RefID: "R-003", Number: "C-3", Title: "Bridge repair", NoticeTitle: "Repair of bridge",
			Contractor: "ACME CORP", Organization: "City of Cebu", Area: "Cebu", Category: "Civil Works",
			Amount: "50.00", Date: "2021-01-01"},
		{RefID: "R-004", Number: "C-4", Title: "Office supplies", NoticeTitle: "Supply of office paper",
			Contractor: "Beta Supplies", Organization: "City of Cebu", Area: "Cebu", Category: "Goods",
			Amount: "1,000.50", Date: "2020-05-15"},
		{RefID: "R-005", Number: "C-5", Title: "School building", NoticeTitle: "Construction of school",
			Contractor: "Gamma Builders", Organization: "DepEd", Area: "Leyte", Category: "Civil Works",
			Amount: "300.00", Date: "2020-11-30"},
		{RefID: "R-006", Number: "C-6", Title: "Road maintenance", NoticeTitle: "Maintenance of road",
			Contractor: "Gamma Builders", Organization: "DPWH Region VII", Area: "Cebu", Category: "Civil Works",
			Amount: "75.25", Date: "2021-08-09"},
		{RefID: "R-007", Number: "C-7", Title: "Consulting", NoticeTitle: "Design consultancy",
			Contractor: "", Organization: "DepEd", Area: "Leyte", Category: "Consulting",
			Amount: "10.00", Date: "2021-12-31"},
	}
}
