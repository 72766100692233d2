package models

import "time"

// Account is the local record of a directory account that was successfully
// provisioned. It is kept independently of the directory's own records.
type Account struct {
	UserID            string    `json:"userId"`
	DisplayName       string    `json:"displayName"`
	UserPrincipalName string    `json:"userPrincipalName"`
	ConfirmationCode  string    `json:"confirmationCode"`
	License           string    `json:"license,omitempty"`
	CreatedAt         time.Time `json:"createdAt"`
}
