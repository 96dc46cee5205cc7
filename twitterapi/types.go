package twitterapi

// User is the REST representation of an account.
type User struct {
	ID         uint64 `json:"id"`
	ScreenName string `json:"screen_name"`
	Name       string `json:"name"`
	Protected  bool   `json:"protected"`
	Following  bool   `json:"following"`
}

// URLEntity annotates a span of status text holding a shortened link.
// Indices are rune offsets [start, end) into the text.
type URLEntity struct {
	URL         string `json:"url"`
	DisplayURL  string `json:"display_url"`
	ExpandedURL string `json:"expanded_url"`
	Indices     []int  `json:"indices"`
}

// Entities carries the structured annotations of a status.
type Entities struct {
	URLs []URLEntity `json:"urls"`
}

// Status is a tweet as delivered by the REST and streaming APIs.
// RetweetedStatus is set when this status is a reshare of another.
type Status struct {
	ID              uint64   `json:"id"`
	Text            string   `json:"text"`
	User            User     `json:"user"`
	Entities        Entities `json:"entities"`
	RetweetedStatus *Status  `json:"retweeted_status,omitempty"`
	CreatedAt       string   `json:"created_at"`
}

// DirectMessage is a DM payload. Legacy stream frames carry the sender
// inline; newer frames nest the whole object under "direct_message".
type DirectMessage struct {
	ID        uint64 `json:"id"`
	Text      string `json:"text"`
	Sender    User   `json:"sender"`
	Recipient User   `json:"recipient"`
}

// FollowerIDsPage is one page of the cursored follower-id listing.
type FollowerIDsPage struct {
	IDs               []uint64 `json:"ids"`
	NextCursor        int64    `json:"next_cursor"`
	PreviousCursor    int64    `json:"previous_cursor"`
	NextCursorStr     string   `json:"next_cursor_str"`
	PreviousCursorStr string   `json:"previous_cursor_str"`
}

// RateLimitStatus reports the caller's remaining REST quota.
type RateLimitStatus struct {
	RemainingHits      int    `json:"remaining_hits"`
	HourlyLimit        int    `json:"hourly_limit"`
	ResetTime          string `json:"reset_time"`
	ResetTimeInSeconds int64  `json:"reset_time_in_seconds"`
}
