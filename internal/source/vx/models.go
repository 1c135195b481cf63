package vx

import "encoding/json"

// UserResponse represents the vxtwitter user endpoint with with_tweets=true.
type UserResponse struct {
	ScreenName      *string  `json:"screen_name"`
	Name            *string  `json:"name"`
	Description     *string  `json:"description"`
	ProfileImageURL *string  `json:"profile_image_url"`
	LatestTweets    *[]Tweet `json:"latest_tweets"`
}

type Tweet struct {
	TweetID             *string         `json:"tweetID"`
	TweetURL            *string         `json:"tweetURL"`
	Text                *string         `json:"text"`
	DateEpoch           *int64          `json:"date_epoch"`
	UserScreenName      *string         `json:"user_screen_name"`
	UserName            *string         `json:"user_name"`
	UserProfileImageURL *string         `json:"user_profile_image_url"`
	MediaExtended       []MediaItem     `json:"media_extended"`
	PossiblySensitive   *bool           `json:"possibly_sensitive"`
	ReplyingTo          *string         `json:"replyingTo"`
	ReplyingToID        *string         `json:"replyingToID"`
	RetweetURL          *string         `json:"retweetURL"`
	Retweet             json.RawMessage `json:"retweet"`
	QrtURL              *string         `json:"qrtURL"`
}

type MediaItem struct {
	URL     *string `json:"url"`
	Type    *string `json:"type"`
	AltText *string `json:"altText"`
}
