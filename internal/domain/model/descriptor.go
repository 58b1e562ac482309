package model

// PackageDescriptor is the per-package metadata document of the F-Droid
// repository. Field order matches what fdroid expects in <packageId>.yml.
type PackageDescriptor struct {
	AuthorName         string   `yaml:"AuthorName"`
	Categories         []string `yaml:"Categories"`
	CurrentVersionCode int64    `yaml:"CurrentVersionCode"`
	Name               string   `yaml:"Name"`
	SourceCode         string   `yaml:"SourceCode"`
	Summary            string   `yaml:"Summary"`
	Description        string   `yaml:"Description"`
	License            string   `yaml:"License"`
}
