package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/mcoot/gamelobby-go/internal/api/response"
	"github.com/mcoot/gamelobby-go/internal/client"
	"github.com/mcoot/gamelobby-go/internal/model"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		o.printJSON(map[string]string{"message": msg})
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

// ReviewList is the result of reviews list
type ReviewList struct {
	Game    string              `json:"game"`
	Summary model.ReviewSummary `json:"summary"`
	Reviews []model.Review      `json:"reviews"`
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case model.StatusReport:
		o.printStatus(v)
	case model.Room:
		o.printRoom(v)
	case []model.Invite:
		o.printInvites(v)
	case []model.ArtifactListing:
		o.printListings(v)
	case ReviewList:
		o.printReviews(v)
	case model.Review:
		fmt.Fprintf(o.w, "Reviewed %s: %d/5\n", v.ArtifactName, v.Rating)
	case client.Published:
		fmt.Fprintf(o.w, "Published %s version %s\n", v.Name, v.Version)
	case response.Health:
		o.printHealth(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

func (o *Output) printStatus(r model.StatusReport) {
	fmt.Fprintf(o.w, "Rooms (%d):\n", len(r.Rooms))
	for _, room := range r.Rooms {
		o.printRoom(room)
	}
	names := make([]string, len(r.OnlineUsers))
	for i, s := range r.OnlineUsers {
		names[i] = fmt.Sprintf("%s (%s)", s.Username, s.Status)
	}
	fmt.Fprintf(o.w, "Online (%d): %s\n", len(names), strings.Join(names, ", "))
	if len(r.History) > 0 {
		fmt.Fprintf(o.w, "Finished (%d):\n", len(r.History))
		for _, room := range r.History {
			o.printRoom(room)
		}
	}
}

func (o *Output) printRoom(room model.Room) {
	fmt.Fprintf(o.w, "  %s  %-8s %-7s %s@%s  [%s]\n",
		room.ID, room.Status, room.Visibility, room.GameKind, shortVersion(room.GameVersion),
		strings.Join(room.Players, ", "))
	if room.Results != nil {
		fmt.Fprintf(o.w, "          winner %s (%s)\n", room.Results.Winner, room.Results.Reason)
	}
}

func (o *Output) printInvites(invites []model.Invite) {
	if len(invites) == 0 {
		fmt.Fprintln(o.w, "No pending invites")
		return
	}
	for _, inv := range invites {
		fmt.Fprintf(o.w, "  %s invited you to room %s (%s)\n", inv.Inviter, inv.RoomID, inv.GameKind)
	}
}

func (o *Output) printListings(listings []model.ArtifactListing) {
	if len(listings) == 0 {
		fmt.Fprintln(o.w, "No games published")
		return
	}
	for _, l := range listings {
		rating := "no reviews"
		if l.Rating.Count > 0 {
			rating = fmt.Sprintf("%.1f/5 from %d", l.Rating.Average, l.Rating.Count)
		}
		fmt.Fprintf(o.w, "  %-16s %s  by %s  %d bytes  %s\n", l.Name, shortVersion(l.Version), l.Publisher, l.Size, rating)
		if l.Description != "" {
			fmt.Fprintf(o.w, "    %s\n", l.Description)
		}
	}
}

func (o *Output) printReviews(r ReviewList) {
	fmt.Fprintf(o.w, "%s: %.1f/5 from %d reviewers\n", r.Game, r.Summary.Average, r.Summary.Count)
	for _, rv := range r.Reviews {
		fmt.Fprintf(o.w, "  [%s] %s %d/5 %s\n", rv.Timestamp.Format("2006-01-02 15:04"), rv.Reviewer, rv.Rating, rv.Comment)
	}
}

func (o *Output) printHealth(h response.Health) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Database: %s\n", h.Database)
	fmt.Fprintf(o.w, "Sessions: %d\n", h.Sessions)
	fmt.Fprintf(o.w, "Instances: %d\n", h.Instances)
}

func shortVersion(v string) string {
	if len(v) > 8 {
		return v[:8]
	}
	return v
}
