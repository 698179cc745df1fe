package domain

// Filter limits for EntryFilter.
const (
	DefaultFilterLimit = 50
	MaxFilterLimit     = 200
)

// EntryFilter contains filtering/pagination parameters for sequence searches.
type EntryFilter struct {
	// Keyword keeps entries carrying this keyword, e.g. "nice".
	Keyword string
	// Name matches a substring of the normalized name.
	Name   string
	Limit  int
	Offset int
}

// Normalize applies defaults and clamps values.
func (f *EntryFilter) Normalize() {
	if f.Limit <= 0 {
		f.Limit = DefaultFilterLimit
	}
	if f.Limit > MaxFilterLimit {
		f.Limit = MaxFilterLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	f.Name = NormalizeText(f.Name)
	f.Keyword = NormalizeText(f.Keyword)
}
