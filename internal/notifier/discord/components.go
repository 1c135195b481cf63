package discord

// Component types from the Discord components v2 reference.
const (
	typeActionRow    = 1
	typeButton       = 2
	typeSection      = 9
	typeTextDisplay  = 10
	typeThumbnail    = 11
	typeMediaGallery = 12
	typeSeparator    = 14
	typeContainer    = 17

	buttonStyleLink = 5

	spacingSmall = 1

	// flagComponentsV2 marks a message as built from layout components.
	flagComponentsV2 = 1 << 15
)

type Message struct {
	Username   string      `json:"username,omitempty"`
	AvatarURL  string      `json:"avatar_url,omitempty"`
	Flags      int         `json:"flags"`
	Components []Component `json:"components"`
}

// Component is the union of every component shape used here.
type Component struct {
	Type        int            `json:"type"`
	Content     string         `json:"content,omitempty"`
	Components  []Component    `json:"components,omitempty"`
	Accessory   *Component     `json:"accessory,omitempty"`
	Media       *UnfurledMedia `json:"media,omitempty"`
	Items       []MediaItem    `json:"items,omitempty"`
	AccentColor *int           `json:"accent_color,omitempty"`
	Divider     *bool          `json:"divider,omitempty"`
	Spacing     int            `json:"spacing,omitempty"`
	Style       int            `json:"style,omitempty"`
	Label       string         `json:"label,omitempty"`
	URL         string         `json:"url,omitempty"`
}

type UnfurledMedia struct {
	URL string `json:"url"`
}

type MediaItem struct {
	Media       UnfurledMedia `json:"media"`
	Description string        `json:"description,omitempty"`
	Spoiler     bool          `json:"spoiler,omitempty"`
}

func textDisplay(content string) Component {
	return Component{Type: typeTextDisplay, Content: content}
}

func separator() Component {
	divider := true
	return Component{Type: typeSeparator, Divider: &divider, Spacing: spacingSmall}
}

func linkButton(label, url string) Component {
	return Component{Type: typeButton, Style: buttonStyleLink, Label: label, URL: url}
}
