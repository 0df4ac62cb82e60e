// Package extract turns a fetch response into an immutable PageRecord.
package extract

import (
	"bytes"
	"mime"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// Scope splits discovered links into internal and external.
type Scope interface {
	InScope(rawURL string) bool
}

var whitespaceRe = regexp.MustCompile(`\s+`)

// Page builds the record for one fetched URL. Non-HTML responses get their
// HTTP metadata only.
func Page(resp crawler.FetchResponse, depth int, scope Scope) (crawler.PageRecord, error) {
	page := crawler.PageRecord{
		URL:           resp.URL,
		FinalURL:      resp.FinalURL,
		Depth:         depth,
		StatusCode:    resp.StatusCode,
		RedirectChain: resp.RedirectChain,
		Headers:       resp.Headers,
		LoadTimeMS:    resp.Duration.Milliseconds(),
		PageSizeBytes: int64(len(resp.Body)),
		Rendered:      resp.UsedHeadless,
	}
	if normalized, err := crawler.NormalizeURL(resp.URL); err == nil {
		page.URL = normalized
	}
	if page.FinalURL == "" {
		page.FinalURL = page.URL
	}
	if final, err := crawler.NormalizeURL(page.FinalURL); err == nil && final != page.URL {
		page.RedirectTarget = final
	}

	contentType := resp.Headers.Get("Content-Type")
	if !isHTML(contentType) || len(resp.Body) == 0 {
		return page, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(decode(resp.Body, contentType)))
	if err != nil {
		return page, err
	}
	html, err := doc.Html()
	if err == nil {
		page.RenderedHTML = html
	}

	base := baseURL(doc, page.FinalURL)

	page.Title = Clean(doc.Find("title").First().Text())
	doc.Find("meta").Each(func(_ int, s *goquery.Selection) {
		name := strings.ToLower(strings.TrimSpace(s.AttrOr("name", "")))
		content := strings.TrimSpace(s.AttrOr("content", ""))
		switch name {
		case "description":
			if page.MetaDescription == "" {
				page.MetaDescription = content
			}
		case "robots":
			if page.MetaRobots == "" {
				page.MetaRobots = strings.ToLower(content)
			}
		}
	})
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if !strings.EqualFold(strings.TrimSpace(s.AttrOr("rel", "")), "canonical") {
			return true
		}
		page.Canonical = resolveLoose(base, s.AttrOr("href", ""))
		return false
	})
	page.Lang = strings.TrimSpace(doc.Find("html").AttrOr("lang", ""))

	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		text := Clean(s.Text())
		level := int(goquery.NodeName(s)[1] - '0')
		page.Headings = append(page.Headings, crawler.Heading{Level: level, Text: text})
		if level == 1 {
			page.H1 = append(page.H1, text)
		}
	})

	doc.Find("img").Each(func(i int, s *goquery.Selection) {
		alt, hasAlt := s.Attr("alt")
		page.Images = append(page.Images, crawler.Image{
			Src:      resolveLoose(base, s.AttrOr("src", "")),
			Alt:      strings.TrimSpace(alt),
			HasAlt:   hasAlt,
			Loading:  strings.ToLower(s.AttrOr("loading", "")),
			Class:    s.AttrOr("class", ""),
			DataSrc:  s.AttrOr("data-src", ""),
			Srcset:   s.AttrOr("srcset", ""),
			Width:    s.AttrOr("width", ""),
			Height:   s.AttrOr("height", ""),
			Position: i,
		})
	})

	page.Links = links(doc, base, scope)
	page.BodyText = VisibleText(doc)
	page.WordCount = len(strings.Fields(page.BodyText))
	return page, nil
}

// Parse parses a page's rendered HTML.
func Parse(page *crawler.PageRecord) (*goquery.Document, error) {
	return goquery.NewDocumentFromReader(strings.NewReader(page.RenderedHTML))
}

// VisibleText returns the body text without scripts, styles or templates.
// The document itself is left untouched.
func VisibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script,noscript,style,template,svg").Remove()
	return Clean(body.Text())
}

// Clean collapses runs of whitespace.
func Clean(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

func links(doc *goquery.Document, base *url.URL, scope Scope) crawler.Links {
	out := crawler.Links{Internal: []crawler.Link{}, External: []crawler.Link{}}
	if base == nil {
		return out
	}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		target, ok := crawler.ResolveURL(base, s.AttrOr("href", ""))
		if !ok {
			return
		}
		link := crawler.Link{URL: target, Text: Clean(s.Text())}
		if link.Text == "" {
			link.Text = strings.TrimSpace(s.AttrOr("aria-label", ""))
		}
		if scope != nil && scope.InScope(target) {
			out.Internal = append(out.Internal, link)
			return
		}
		out.External = append(out.External, link)
	})
	return out
}

// baseURL honors <base href> when present.
func baseURL(doc *goquery.Document, pageURL string) *url.URL {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			return base.ResolveReference(ref)
		}
	}
	return base
}

func resolveLoose(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" || base == nil || strings.HasPrefix(href, "data:") {
		return href
	}
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}

func decode(body []byte, contentType string) []byte {
	if utf8.Valid(body) {
		return body
	}
	enc, _, _ := charset.DetermineEncoding(body, contentType)
	decoded, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return decoded
}

func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.Contains(strings.ToLower(contentType), "html")
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}
