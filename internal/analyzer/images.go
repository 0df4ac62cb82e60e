package analyzer

import (
	"fmt"
	"net/url"
	"path"
	"strings"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// BelowFoldPosition is the 0-based document position from which an image is
// assumed to render below the fold.
const BelowFoldPosition = 3

var modernFormats = map[string]bool{"webp": true, "avif": true, "svg": true}

// Images checks alt text, lazy loading, formats and explicit dimensions.
type Images struct{}

// NewImages returns the image analyzer.
func NewImages() *Images { return &Images{} }

// Name implements Analyzer.
func (*Images) Name() string { return "images" }

// Analyze implements Analyzer.
func (*Images) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	var (
		issues                                      []crawler.Issue
		total, noAlt, notLazy, legacy, noDimensions int
	)
	add := func(code string, sev crawler.Severity, msg, fix string) {
		issues = append(issues, issue(page, crawler.CategoryImages, code, sev, msg, fix))
	}
	for _, img := range page.Images {
		src := img.Src
		if src == "" {
			src = img.DataSrc
		}
		if strings.HasPrefix(strings.ToLower(src), "data:") {
			continue
		}
		total++
		if img.Alt == "" {
			noAlt++
			add("missing_alt_text", crawler.SeverityWarning, fmt.Sprintf("Image missing alt text: %s", preview(src, 80)),
				"Add descriptive alt text, or alt=\"\" with role=\"presentation\" for decorative images")
		}
		if img.Position >= BelowFoldPosition && !lazy(img) {
			notLazy++
			add("image_not_lazy_loaded", crawler.SeverityInfo, fmt.Sprintf("Below-the-fold image is not lazy loaded: %s", preview(src, 80)),
				`Add loading="lazy"`)
		}
		if format := imageFormat(src); format != "" && !modernFormats[format] {
			legacy++
			add("legacy_image_format", crawler.SeverityInfo, fmt.Sprintf("Image uses legacy %s format: %s", format, preview(src, 80)),
				"Serve WebP or AVIF for better compression")
		}
		if img.Width == "" || img.Height == "" {
			noDimensions++
			add("missing_image_dimensions", crawler.SeverityInfo, fmt.Sprintf("Image missing width/height: %s", preview(src, 80)),
				"Set width and height to prevent layout shift")
		}
	}
	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"total":              float64(total),
			"missing_alt":        float64(noAlt),
			"not_lazy_loaded":    float64(notLazy),
			"legacy_format":      float64(legacy),
			"missing_dimensions": float64(noDimensions),
			// ~50KB saved per converted image
			"estimated_savings_kb": float64(legacy * 50),
		},
	}, nil
}

func lazy(img crawler.Image) bool {
	if strings.EqualFold(img.Loading, "lazy") || img.DataSrc != "" {
		return true
	}
	for _, class := range strings.Fields(strings.ToLower(img.Class)) {
		if class == "lazyload" || class == "lazy" {
			return true
		}
	}
	return false
}

// imageFormat reads the format from the URL path extension.
func imageFormat(src string) string {
	p := src
	if u, err := url.Parse(src); err == nil {
		p = u.Path
	}
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(p)), ".")
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}
