package stremio

// Manifest describes the capabilities of the addon.
// See https://github.com/Stremio/stremio-addon-sdk/blob/master/docs/api/responses/manifest.md
type Manifest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	Resources []string `json:"resources"`
	Types     []string `json:"types"`
	// An empty slice is required for serializing to a JSON that Stremio expects
	Catalogs []CatalogItem `json:"catalogs"`

	// Optional
	IDprefixes    []string       `json:"idPrefixes,omitempty"`
	Background    string         `json:"background,omitempty"` // URL
	Logo          string         `json:"logo,omitempty"`       // URL
	ContactEmail  string         `json:"contactEmail,omitempty"`
	BehaviorHints *BehaviorHints `json:"behaviorHints,omitempty"`
}

type BehaviorHints struct {
	Adult        bool `json:"adult,omitempty"`
	Configurable bool `json:"configurable,omitempty"`
}

// CatalogItem represents an item in the catalog
type CatalogItem struct {
	Type string `json:"type"`
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StreamItem represents a single stream for a content item.
// See https://github.com/Stremio/stremio-addon-sdk/blob/master/docs/api/responses/stream.md
type StreamItem struct {
	// One of the following is required
	URL      string `json:"url,omitempty"` // URL
	InfoHash string `json:"infoHash,omitempty"`

	// Optional
	Name  string `json:"name,omitempty"`
	Title string `json:"title,omitempty"`
	// Only when using InfoHash
	FileIndex *int `json:"fileIdx,omitempty"`

	BehaviorHints *StreamBehaviorHints `json:"behaviorHints,omitempty"`
}

type StreamBehaviorHints struct {
	Filename     string        `json:"filename,omitempty"`
	BingeGroup   string        `json:"bingeGroup,omitempty"`
	ProxyHeaders *ProxyHeaders `json:"proxyHeaders,omitempty"`
	NotWebReady  bool          `json:"notWebReady,omitempty"`
}

// ProxyHeaders are headers the client must present when fetching the stream URL.
type ProxyHeaders struct {
	Request map[string]string `json:"request,omitempty"`
}

// StreamResponse is the payload for a stream listing, including the cache
// hints Stremio understands.
type StreamResponse struct {
	Streams []StreamItem `json:"streams"`
	// All in seconds
	CacheMaxAge     int `json:"cacheMaxAge"`
	StaleRevalidate int `json:"staleRevalidate"`
	StaleError      int `json:"staleError"`
}
