package domain

// HourlyBucket is one point of the analytics planner's trend output.
type HourlyBucket struct {
	Hour  string
	Count int
}

// AtRiskCustomer flags a customer with multiple concurrently open
// high-urgency tickets.
type AtRiskCustomer struct {
	CustomerID           string
	HighUrgencyOpenCount int
}

// TenantStats is the aggregate analytics view computed per tenant,
// including the at-risk-customer and keyword-frequency facets alongside
// the core status/urgency/sentiment breakdown.
type TenantStats struct {
	TotalTickets       int
	ByStatus           map[TicketStatus]int
	UrgencyHighRatio   float64
	NegativeSentRatio  float64
	HourlyTrend        []HourlyBucket
	TopKeywords        []string
	AtRiskCustomers    []AtRiskCustomer
}
