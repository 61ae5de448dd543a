package model

import "time"

// DateLayout is the timestamp format written to the certificate log.
const DateLayout = "2006-01-02 15:04:05"

// Certificate is one issued-certificate record in the log.
// Digest is the lookup key for verification but is not unique: the same
// document uploaded twice yields two records sharing a digest.
type Certificate struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Digest    string    `json:"digest"`
	QRCode    string    `json:"qr_code"`
	CreatedAt time.Time `json:"created_at"`
}

// Date returns CreatedAt in the log's date format.
func (c *Certificate) Date() string {
	return c.CreatedAt.Format(DateLayout)
}

// VerifyResult is the outcome of looking up a hash in the certificate log.
// A miss is a normal result (Found=false), not an error.
type VerifyResult struct {
	Hash  string  `json:"hash"`
	Found bool    `json:"found"`
	Name  *string `json:"name"`
	Date  *string `json:"date"`
}
