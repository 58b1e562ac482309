package driven

import "errors"

// Sentinel errors shared by the publish pipeline's driven ports. Adapters
// wrap them together with the underlying cause, so callers classify failures
// with errors.Is and still see the full diagnostic.
var (
	// ErrNetwork indicates the release API or an asset download failed after all retries.
	ErrNetwork = errors.New("network error")

	// ErrMalformedRelease indicates a release payload without a usable APK asset or name.
	ErrMalformedRelease = errors.New("malformed release")

	// ErrReleaseNotFound indicates no release matched the requested tag.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrCorruptArtifact indicates the downloaded APK could not be decoded.
	ErrCorruptArtifact = errors.New("corrupt artifact")

	// ErrInvalidPackageID indicates a package id that is not a dotted
	// identifier and therefore cannot name a metadata path.
	ErrInvalidPackageID = errors.New("invalid package id")

	// ErrMerge indicates a filesystem failure while merging into the publish target.
	ErrMerge = errors.New("merge failed")

	// ErrVersionCollision indicates the normalized artifact already exists in the
	// repository directory. Errors wrapping it also match ErrMerge.
	ErrVersionCollision = errors.New("artifact version collision")

	// ErrBuild indicates the external index build tool failed or timed out.
	ErrBuild = errors.New("index build failed")

	// ErrRotation indicates the served snapshot could not be replaced.
	ErrRotation = errors.New("snapshot rotation failed")
)
