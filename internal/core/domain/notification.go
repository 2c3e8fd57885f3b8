package domain

// Notification is a message handed to the delivery pipeline.
type Notification struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTMLBody string `json:"html_body"`
}
