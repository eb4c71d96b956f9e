package domain

// Invite is a single invite code and its redemption state. CreatedAt is
// epoch milliseconds.
type Invite struct {
	Code       string  `json:"code" validate:"required"`
	CreatedAt  int64   `json:"createdAt" validate:"gte=0"`
	RedeemedBy *string `json:"redeemedBy"`
	RedeemedAt *int64  `json:"redeemedAt"`
}

const (
	DefaultListLimit   = 20
	MaxListLimit       = 100
	DefaultListReverse = true

	MaxCodeLength     = 256
	MaxCodeSize       = 255
	MaxAlphabetLength = 255
)

// CreateRequest is the body of an invite creation. A nil Code asks the
// service to generate one.
type CreateRequest struct {
	Code *string `json:"code,omitempty" validate:"omitempty,min=1,max=256"`
}

// CodeOptions shapes generated codes. Zero values mean "use the default".
type CodeOptions struct {
	Size     int    `json:"size,omitempty" validate:"omitempty,gte=1,lte=255"`
	Alphabet string `json:"alphabet,omitempty" validate:"omitempty,max=255"`
}

// ListRequest is a fully resolved page request; callers apply defaults.
type ListRequest struct {
	Cursor  string `json:"cursor,omitempty"`
	Limit   int    `json:"limit" validate:"gte=1,lte=100"`
	Reverse bool   `json:"reverse"`
}

// NewListRequest returns a request carrying the default limit and order.
func NewListRequest() ListRequest {
	return ListRequest{Limit: DefaultListLimit, Reverse: DefaultListReverse}
}

// ListResponse is one page of invites ordered by creation time. Cursor is
// empty on the last page.
type ListResponse struct {
	Items  []Invite `json:"items"`
	Cursor string   `json:"cursor"`
}

// IndexStats compares the primary records with the creation-time index.
type IndexStats struct {
	Primary  int `json:"primary"`
	Index    int `json:"index"`
	Missing  int `json:"missing"`
	Orphaned int `json:"orphaned"`
}

// Consistent reports whether every record has exactly one index entry.
func (s IndexStats) Consistent() bool {
	return s.Missing == 0 && s.Orphaned == 0 && s.Primary == s.Index
}
