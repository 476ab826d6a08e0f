package models

type Participant struct {
	ID          string  `json:"id"`
	FirstName   string  `json:"first_name"`
	LastName    string  `json:"last_name"`
	Description *string `json:"description,omitempty"`
	AvatarKey   *string `json:"-"`
	AvatarURL   *string `json:"avatar_url,omitempty"`
	TotalVotes  int64   `json:"total_votes"`
	Videos      []Video `json:"videos"`
}

type Video struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}
