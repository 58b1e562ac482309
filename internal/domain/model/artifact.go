package model

// ArtifactMetadata holds the identity fields read from an APK manifest.
// VersionCode orders builds of the same PackageID.
type ArtifactMetadata struct {
	PackageID   string
	VersionName string
	VersionCode int64
	DisplayName string
}

// MergeRequest carries everything the publish target needs to merge one
// downloaded artifact.
type MergeRequest struct {
	ArtifactPath string
	Metadata     ArtifactMetadata
	SourceURL    string
	Changelog    string
}
