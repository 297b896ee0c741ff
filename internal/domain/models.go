package domain

import (
	"time"

	"github.com/google/uuid"
)

// Party is a political party running in an election. Shortname is unique
// within one election and is the identifier clients use in requests.
type Party struct {
	ID          uuid.UUID `json:"id"`
	ElectionID  uuid.UUID `json:"election_id"`
	Shortname   string    `json:"shortname"`
	Fullname    string    `json:"fullname"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
}

// Election supplies read-only context for query construction and prompts.
type Election struct {
	ID          uuid.UUID `json:"id"`
	CountryCode string    `json:"country_code"`
	CountryName string    `json:"country_name"`
	Name        string    `json:"name"`
	Year        int       `json:"year"`
	Date        time.Time `json:"date"`
}
