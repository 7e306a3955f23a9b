package models

// SortBy selects the ranking key of the feed
type SortBy string

const (
	SortTrending SortBy = "trending"
	SortLatest   SortBy = "latest"
	SortTop      SortBy = "top"
)

// Valid reports whether the sort key is one of the supported modes
func (s SortBy) Valid() bool {
	switch s {
	case SortTrending, SortLatest, SortTop:
		return true
	}
	return false
}

// SortOrder is the direction applied after ranking
type SortOrder string

const (
	SortAsc  SortOrder = "asc"
	SortDesc SortOrder = "desc"
)

func (o SortOrder) Valid() bool {
	return o == SortAsc || o == SortDesc
}

// Labels is the closed set of post categories, in display order
var Labels = []string{
	"Help Required",
	"New Idea",
	"Looking for Team",
	"Needs Feedback",
	"Discussion",
	"Resource Sharing",
	"Question",
	"Tutorial",
	"Success Story",
	"Open Ended Discussion",
	"Professor Input Needed",
	"Student Project",
	"Other",
}

// IsKnownLabel reports whether label belongs to Labels
func IsKnownLabel(label string) bool {
	for _, l := range Labels {
		if l == label {
			return true
		}
	}
	return false
}

// FilterConfig is the user-chosen sort and filter state of the feed.
// An empty SelectedTags means no filtering.
type FilterConfig struct {
	SortBy       SortBy    `json:"sortBy"`
	SortOrder    SortOrder `json:"sortOrder"`
	SelectedTags []string  `json:"selectedTags"`
}

// DefaultFilterConfig returns the state the feed starts in and resets to
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		SortBy:       SortTrending,
		SortOrder:    SortDesc,
		SelectedTags: []string{},
	}
}

// Clone returns a copy that shares no slice memory with fc
func (fc FilterConfig) Clone() FilterConfig {
	tags := make([]string, len(fc.SelectedTags))
	copy(tags, fc.SelectedTags)
	fc.SelectedTags = tags
	return fc
}
