package models

import (
	"sort"
	"strings"
	"time"
)

type Post struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Title     string        `json:"title"`
	Month     int           `json:"month"`
	Content   string        `json:"content"`
	Caption   string        `json:"caption,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
	CreatedBy string        `json:"createdBy,omitempty"`
	Published bool          `json:"published"`
	Order     int           `json:"order"`
	Metadata  *FileMetadata `json:"metadata,omitempty"`
	Tags      []string      `json:"tags,omitempty"`
	Deleted   bool          `json:"deleted,omitempty"`
}

// FileMetadata is the best-effort record produced by metadata extraction.
// Every field is optional; dates are kept as strings because dateTaken is
// user-editable after upload.
type FileMetadata struct {
	DateTaken            string      `json:"dateTaken,omitempty"`
	DateCreated          string      `json:"dateCreated,omitempty"`
	DateModified         string      `json:"dateModified,omitempty"`
	Camera               string      `json:"camera,omitempty"`
	Location             *Location   `json:"location,omitempty"`
	DurationSeconds      float64     `json:"durationSeconds,omitempty"`
	Dimensions           *Dimensions `json:"dimensions,omitempty"`
	AlbumCoverURL        string      `json:"albumCoverUrl,omitempty"`
	AlbumCoverDimensions *Dimensions `json:"albumCoverDimensions,omitempty"`
}

type Location struct {
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PostPatch is a partial update. Nil fields are left unchanged; id and
// createdAt are not patchable.
type PostPatch struct {
	Type      *string       `json:"type,omitempty"`
	Title     *string       `json:"title,omitempty"`
	Month     *int          `json:"month,omitempty"`
	Content   *string       `json:"content,omitempty"`
	Caption   *string       `json:"caption,omitempty"`
	CreatedBy *string       `json:"createdBy,omitempty"`
	Published *bool         `json:"published,omitempty"`
	Order     *int          `json:"order,omitempty"`
	Metadata  *FileMetadata `json:"metadata,omitempty"`
	Tags      *[]string     `json:"tags,omitempty"`
	Deleted   *bool         `json:"deleted,omitempty"`
}

// Apply merges the patch into p, preserving id and createdAt and stamping
// updatedAt with now.
func (u PostPatch) Apply(p *Post, now time.Time) {
	if u.Type != nil {
		p.Type = *u.Type
	}
	if u.Title != nil {
		p.Title = strings.TrimSpace(*u.Title)
	}
	if u.Month != nil {
		p.Month = *u.Month
	}
	if u.Content != nil {
		p.Content = *u.Content
	}
	if u.Caption != nil {
		p.Caption = strings.TrimSpace(*u.Caption)
	}
	if u.CreatedBy != nil {
		p.CreatedBy = *u.CreatedBy
	}
	if u.Published != nil {
		p.Published = *u.Published
	}
	if u.Order != nil {
		p.Order = *u.Order
	}
	if u.Metadata != nil {
		p.Metadata = u.Metadata
	}
	if u.Tags != nil {
		p.Tags = *u.Tags
	}
	if u.Deleted != nil {
		p.Deleted = *u.Deleted
	}
	p.UpdatedAt = now
}

const (
	PostTypeText  = "text"
	PostTypePhoto = "photo"
	PostTypeVideo = "video"
	PostTypeAudio = "audio"
	PostTypeStat  = "stat"
)

const (
	MinMonth = 0
	MaxMonth = 12
)

func ValidPostType(t string) bool {
	switch t {
	case PostTypeText, PostTypePhoto, PostTypeVideo, PostTypeAudio, PostTypeStat:
		return true
	}
	return false
}

func ValidMonth(month int) bool {
	return month >= MinMonth && month <= MaxMonth
}

func ValidTitle(title string) bool {
	return strings.TrimSpace(title) != ""
}

// HasDateTaken reports whether the post carries a user-editable capture
// date. Responses containing such a post must not be cached.
func (p *Post) HasDateTaken() bool {
	return p.Metadata != nil && p.Metadata.DateTaken != ""
}

// SortPostsForMonth orders posts ascending by order, ties broken by
// createdAt ascending.
func SortPostsForMonth(posts []*Post) {
	sortPosts(posts, func(a, b *Post) bool {
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

// SortPostsForAdmin orders posts by month, then order, then createdAt.
func SortPostsForAdmin(posts []*Post) {
	sortPosts(posts, func(a, b *Post) bool {
		if a.Month != b.Month {
			return a.Month < b.Month
		}
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		return a.CreatedAt.Before(b.CreatedAt)
	})
}

func sortPosts(posts []*Post, less func(a, b *Post) bool) {
	sort.SliceStable(posts, func(i, j int) bool {
		return less(posts[i], posts[j])
	})
}
