package models

// FaqItem summarizes one cluster of a completed job.
type FaqItem struct {
	ClusterID  string `db:"cluster_id"  json:"cluster_id"`
	Business   string `db:"business"    json:"business"`
	NumTickets int    `db:"num_tickets" json:"num_tickets"`
	Summarized string `db:"summarized"  json:"summarized"`
}

// ClusterDetailItem is one support ticket belonging to a cluster.
type ClusterDetailItem struct {
	TicketID               string `db:"ticket_id"                json:"ticket_id"`
	TicketLanguage         string `db:"ticket_language"          json:"ticket_language"`
	Dt                     Date   `db:"dt"                       json:"dt"`
	PlayerIssueDescription string `db:"player_issue_description" json:"player_issue_description"`
	UserIssue              string `db:"user_issue"               json:"user_issue"`
}

// ClusterResult is what a clustering worker publishes for one cluster:
// the FAQ summary together with the tickets it groups.
type ClusterResult struct {
	FaqItem
	Tickets []ClusterDetailItem `json:"tickets"`
}
