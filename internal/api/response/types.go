package response

import (
	"time"

	"github.com/mcoot/gamelobby-go/internal/model"
)

// Health is the response of the health endpoint
type Health struct {
	Status    string `json:"status"`
	Database  string `json:"database"`
	Sessions  int    `json:"sessions"`
	Instances int    `json:"instances"`
}

// Room represents a room in API responses
type Room struct {
	ID          string             `json:"room_id"`
	Host        string             `json:"host"`
	Players     []string           `json:"players"`
	Visibility  string             `json:"visibility"`
	Status      string             `json:"status"`
	GameKind    string             `json:"game_kind"`
	GameVersion string             `json:"game_version"`
	Results     *model.GameResults `json:"results,omitempty"`
	Instance    *Instance          `json:"instance,omitempty"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Instance describes the running game of a room
type Instance struct {
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// RoomFromModel converts model.Room
func RoomFromModel(r model.Room) Room {
	players := append([]string{}, r.Players...)
	return Room{
		ID:          string(r.ID),
		Host:        r.Host(),
		Players:     players,
		Visibility:  string(r.Visibility),
		Status:      string(r.Status),
		GameKind:    r.GameKind,
		GameVersion: r.GameVersion,
		Results:     r.Results,
		UpdatedAt:   r.UpdatedAt,
	}
}

// Rooms is the response of the rooms endpoint
type Rooms struct {
	Rooms       []Room   `json:"rooms"`
	History     []Room   `json:"history"`
	OnlineUsers []string `json:"online_users"`
}

// Game represents a published game in API responses
type Game struct {
	Name        string    `json:"name"`
	Publisher   string    `json:"publisher"`
	Description string    `json:"description"`
	Version     string    `json:"version"`
	Size        int64     `json:"size"`
	Reviews     int       `json:"reviews"`
	Rating      float64   `json:"rating"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GameFromModel converts model.ArtifactListing
func GameFromModel(l model.ArtifactListing) Game {
	return Game{
		Name:        l.Name,
		Publisher:   l.Publisher,
		Description: l.Description,
		Version:     l.Version,
		Size:        l.Size,
		Reviews:     l.Rating.Count,
		Rating:      l.Rating.Average,
		UpdatedAt:   l.UpdatedAt,
	}
}

// Games is the response of the games endpoint
type Games struct {
	Games []Game `json:"games"`
}

// Review represents one review
type Review struct {
	Reviewer  string    `json:"reviewer"`
	Rating    int       `json:"rating"`
	Comment   string    `json:"comment"`
	Timestamp time.Time `json:"timestamp"`
}

// Reviews is the response of the reviews endpoint
type Reviews struct {
	Game    string              `json:"game"`
	Summary model.ReviewSummary `json:"summary"`
	Reviews []Review            `json:"reviews"`
}

// ReviewsFromModel converts a review list and its summary
func ReviewsFromModel(name string, list []model.Review, summary model.ReviewSummary) Reviews {
	reviews := make([]Review, len(list))
	for i, r := range list {
		reviews[i] = Review{
			Reviewer:  r.Reviewer,
			Rating:    r.Rating,
			Comment:   r.Comment,
			Timestamp: r.Timestamp,
		}
	}
	return Reviews{Game: name, Summary: summary, Reviews: reviews}
}
