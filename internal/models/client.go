package models

// Client represents a business client in the portfolio
type Client struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Document string `json:"document"`
	BranchID int64  `json:"branch_id"`
}

// Snapshot is a read-only view of the records an analysis run works on
type Snapshot struct {
	Clients       []Client      `json:"clients"`
	Invoices      []Invoice     `json:"invoices"`
	Opportunities []Opportunity `json:"opportunities"`
}
