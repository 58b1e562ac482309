package application

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/model"
	"github.com/JanneSaarikettuWork/AutoPublish/internal/domain/port/driven"
)

var (
	// starBulletPattern matches "* " bullets, optionally indented with spaces.
	starBulletPattern = regexp.MustCompile(`(?m)^ *\* `)
	dashLinePattern   = regexp.MustCompile(`^\s*-.*$`)
)

// ParseRelease turns a raw release payload into a ReleaseInfo. The first
// asset whose name contains ".apk" is selected, even when there are several.
func ParseRelease(repo string, raw model.RawRelease) (model.ReleaseInfo, error) {
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		return model.ReleaseInfo{}, fmt.Errorf("%w: %s release %q has no name", driven.ErrMalformedRelease, repo, raw.TagName)
	}

	for _, asset := range raw.Assets {
		if !strings.Contains(asset.Name, ".apk") {
			continue
		}

		return model.ReleaseInfo{
			SourceRepo:          repo,
			ReleaseName:         name,
			TagVersion:          strings.TrimSpace(raw.TagName),
			PublishedDate:       strings.TrimSpace(raw.PublishedAt),
			ArtifactDownloadURL: strings.TrimSpace(asset.URL),
			ArtifactFileName:    strings.TrimSpace(asset.Name),
			Changelog:           ExtractChangelog(raw.Body),
			ReleaseBrowserURL:   releaseBrowserURL(raw.HTMLURL),
		}, nil
	}

	return model.ReleaseInfo{}, fmt.Errorf("%w: %s release %q has no apk asset", driven.ErrMalformedRelease, repo, name)
}

// releaseBrowserURL cuts the release page URL back to the repository URL by
// dropping "releases" and everything after it.
func releaseBrowserURL(htmlURL string) string {
	u := strings.TrimSpace(htmlURL)
	if i := strings.Index(u, "releases"); i >= 0 {
		return u[:i]
	}
	return u
}

// ExtractChangelog reduces a free-text release body to its bullet lines.
// "* " bullets become "- "; prose lines are dropped.
func ExtractChangelog(body string) string {
	text := strings.ReplaceAll(body, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = starBulletPattern.ReplaceAllString(text, "- ")

	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		if dashLinePattern.MatchString(line) {
			bullets = append(bullets, line)
		}
	}

	return strings.TrimSpace(strings.Join(bullets, "\n"))
}

// IsDevRelease reports whether a release name marks a development build.
func IsDevRelease(name string) bool {
	return strings.Contains(name, "-dev") || strings.Contains(name, "_dev")
}
