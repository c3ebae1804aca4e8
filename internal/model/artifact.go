package model

import "time"

// ArtifactVersion binds a version token to the blob holding its bytes
type ArtifactVersion struct {
	Version   string    `json:"version"`
	BlobKey   string    `json:"blob_key"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Artifact is a published game. Version is the current version token;
// Versions keeps every version still addressable by rooms bound to it.
type Artifact struct {
	Name        string            `json:"name"`
	Publisher   string            `json:"publisher"`
	Description string            `json:"description"`
	Version     string            `json:"version"`
	BlobKey     string            `json:"blob_key"`
	Size        int64             `json:"size"`
	Versions    []ArtifactVersion `json:"versions"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

// Clone returns a deep copy of the artifact
func (a *Artifact) Clone() *Artifact {
	c := *a
	c.Versions = append([]ArtifactVersion(nil), a.Versions...)
	return &c
}

// Lookup finds a version entry by token
func (a *Artifact) Lookup(version string) (ArtifactVersion, bool) {
	for _, v := range a.Versions {
		if v.Version == version {
			return v, true
		}
	}
	return ArtifactVersion{}, false
}

// ArtifactListing is the public view of an artifact returned by listings
type ArtifactListing struct {
	Name        string        `json:"name"`
	Publisher   string        `json:"publisher"`
	Description string        `json:"description"`
	Version     string        `json:"version"`
	Size        int64         `json:"size"`
	Rating      ReviewSummary `json:"rating"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// DownloadTicket describes the blob a client should receive for an artifact
type DownloadTicket struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	BlobKey string `json:"blob_key"`
	Size    int64  `json:"file_size"`
}

// Listing returns the public view of the artifact with its rating summary
func (a *Artifact) Listing(rating ReviewSummary) ArtifactListing {
	return ArtifactListing{
		Name:        a.Name,
		Publisher:   a.Publisher,
		Description: a.Description,
		Version:     a.Version,
		Size:        a.Size,
		Rating:      rating,
		UpdatedAt:   a.UpdatedAt,
	}
}
