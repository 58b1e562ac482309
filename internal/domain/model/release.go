package model

// RawRelease is a release payload as delivered by the release API, before
// any selection or normalization.
type RawRelease struct {
	Name        string
	TagName     string
	PublishedAt string // ISO-8601; empty when the release has not been published.
	HTMLURL     string
	Body        string
	Assets      []RawAsset
}

// RawAsset is one binary attached to a release.
type RawAsset struct {
	ID   int64
	Name string
	URL  string // API URL; downloading it requires Accept: application/octet-stream.
}

// ReleaseInfo is the normalized view of a release that the publish pipeline
// works with. SourceRepo and ReleaseName together form the dedupe key.
type ReleaseInfo struct {
	SourceRepo          string
	ReleaseName         string
	TagVersion          string
	PublishedDate       string
	ArtifactDownloadURL string
	ArtifactFileName    string
	Changelog           string
	ReleaseBrowserURL   string
}
