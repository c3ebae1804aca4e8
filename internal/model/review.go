package model

import "time"

// Review is an append-only player rating of an artifact
type Review struct {
	ArtifactName string    `json:"game_name"`
	Reviewer     string    `json:"reviewer"`
	Rating       int       `json:"rating"`
	Comment      string    `json:"comment"`
	Timestamp    time.Time `json:"timestamp"`
}

// ReviewSummary aggregates the latest review of each reviewer
type ReviewSummary struct {
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}
