package content

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"
)

// PyPIResponse is the subset of the PyPI JSON API document we read.
type PyPIResponse struct {
	Info     PyPIInfo                 `json:"info"`
	Releases map[string][]ReleaseFile `json:"releases"`
}

// PyPIInfo is the "info" object of a PyPI JSON API document.
type PyPIInfo struct {
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Summary        string            `json:"summary"`
	Description    string            `json:"description"`
	Author         string            `json:"author"`
	AuthorEmail    string            `json:"author_email"`
	License        string            `json:"license"`
	HomePage       string            `json:"home_page"`
	ProjectURL     string            `json:"project_url"`
	ProjectURLs    map[string]string `json:"project_urls"`
	RequiresPython string            `json:"requires_python"`
	Classifiers    []string          `json:"classifiers"`
	Keywords       string            `json:"keywords"`
	Downloads      json.RawMessage   `json:"downloads,omitempty"`
}

// ReleaseFile is one distribution file of a release.
type ReleaseFile struct {
	Filename   string    `json:"filename"`
	UploadTime time.Time `json:"upload_time_iso_8601"`
}

// PackageInfo is PyPI metadata shaped for display.
type PackageInfo struct {
	Name           string            `json:"name" yaml:"name"`
	Version        string            `json:"version" yaml:"version"`
	Summary        string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description    string            `json:"description,omitempty" yaml:"description,omitempty"`
	Author         string            `json:"author,omitempty" yaml:"author,omitempty"`
	AuthorEmail    string            `json:"author_email,omitempty" yaml:"author_email,omitempty"`
	License        string            `json:"license,omitempty" yaml:"license,omitempty"`
	HomePage       string            `json:"home_page,omitempty" yaml:"home_page,omitempty"`
	ProjectURL     string            `json:"project_url,omitempty" yaml:"project_url,omitempty"`
	ProjectURLs    map[string]string `json:"project_urls,omitempty" yaml:"project_urls,omitempty"`
	RequiresPython string            `json:"requires_python,omitempty" yaml:"requires_python,omitempty"`
	Classifiers    []string          `json:"classifiers" yaml:"classifiers"`
	Keywords       string            `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Downloads      json.RawMessage   `json:"downloads,omitempty" yaml:"-"`
	// LastReleased is the version with the most recent upload.
	LastReleased string `json:"last_released,omitempty" yaml:"last_released,omitempty"`
	// AllVersions is newest first.
	AllVersions []string `json:"all_versions" yaml:"all_versions"`
}

// FormatPyPI shapes a PyPI document for display.
func FormatPyPI(resp *PyPIResponse) *PackageInfo {
	info := resp.Info

	versions := make([]string, 0, len(resp.Releases))
	for v := range resp.Releases {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool {
		return compareVersions(versions[i], versions[j]) > 0
	})

	classifiers := info.Classifiers
	if classifiers == nil {
		classifiers = []string{}
	}

	return &PackageInfo{
		Name:           info.Name,
		Version:        info.Version,
		Summary:        info.Summary,
		Description:    info.Description,
		Author:         info.Author,
		AuthorEmail:    info.AuthorEmail,
		License:        info.License,
		HomePage:       info.HomePage,
		ProjectURL:     info.ProjectURL,
		ProjectURLs:    info.ProjectURLs,
		RequiresPython: info.RequiresPython,
		Classifiers:    classifiers,
		Keywords:       info.Keywords,
		Downloads:      info.Downloads,
		LastReleased:   lastReleased(resp.Releases, versions),
		AllVersions:    versions,
	}
}

// lastReleased picks the version with the latest upload. Releases without
// files fall back to version order.
func lastReleased(releases map[string][]ReleaseFile, newestFirst []string) string {
	var (
		best     string
		bestTime time.Time
	)
	for _, v := range newestFirst {
		for _, f := range releases[v] {
			if f.UploadTime.After(bestTime) {
				best, bestTime = v, f.UploadTime
			}
		}
	}
	if best == "" && len(newestFirst) > 0 {
		return newestFirst[0]
	}
	return best
}

// compareVersions orders dotted versions numerically where segments are
// numeric, so 0.10 sorts after 0.9. Non-numeric segments compare as strings.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) || i < len(bs); i++ {
		var x, y string
		if i < len(as) {
			x = as[i]
		}
		if i < len(bs) {
			y = bs[i]
		}
		if c := compareSegment(x, y); c != 0 {
			return c
		}
	}
	return 0
}

func compareSegment(x, y string) int {
	xn, xerr := strconv.Atoi(x)
	yn, yerr := strconv.Atoi(y)
	switch {
	case xerr == nil && yerr == nil:
		return xn - yn
	case x == "" && y != "":
		return -1
	case y == "" && x != "":
		return 1
	default:
		return strings.Compare(x, y)
	}
}
