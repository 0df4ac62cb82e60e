package analyzer

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/JakeFAU/seo-site-crawler/internal/crawler"
)

// MinHSTSMaxAge is one year in seconds.
const MinHSTSMaxAge = 31536000

var hstsMaxAgeRe = regexp.MustCompile(`(?i)max-age\s*=\s*"?(\d+)`)

// Security grades the response's security headers.
type Security struct{}

// NewSecurity returns the security header analyzer.
func NewSecurity() *Security { return &Security{} }

// Name implements Analyzer.
func (*Security) Name() string { return "security" }

// Analyze implements Analyzer.
func (*Security) Analyze(page *crawler.PageRecord) (Result, error) {
	if !hasDocument(page) {
		return Result{}, nil
	}
	h := page.Headers
	if h == nil {
		h = http.Header{}
	}
	var issues []crawler.Issue
	add := func(code string, sev crawler.Severity, msg, fix string) {
		issues = append(issues, issue(page, crawler.CategorySecurity, code, sev, msg, fix))
	}
	score := 0

	if csp := h.Get("Content-Security-Policy"); csp != "" {
		score += 20
		if strings.Contains(csp, "'unsafe-inline'") && strings.Contains(csp, "'unsafe-eval'") {
			add("permissive_csp", crawler.SeverityInfo, "CSP allows unsafe-inline and unsafe-eval",
				"Tighten the policy and drop unsafe-inline/unsafe-eval")
		}
	} else {
		add("missing_csp", crawler.SeverityWarning, "Missing Content-Security-Policy header",
			"Implement a CSP policy: default-src 'self'")
	}

	if hsts := h.Get("Strict-Transport-Security"); hsts != "" {
		score += 20
		if m := hstsMaxAgeRe.FindStringSubmatch(hsts); m != nil {
			if age, err := strconv.Atoi(m[1]); err == nil && age < MinHSTSMaxAge {
				add("weak_hsts", crawler.SeverityInfo, fmt.Sprintf("HSTS max-age %d is under one year", age),
					fmt.Sprintf("Increase HSTS max-age to at least %d", MinHSTSMaxAge))
			}
		}
	} else {
		add("missing_hsts", crawler.SeverityWarning, "Missing Strict-Transport-Security header",
			"Add: max-age=31536000; includeSubDomains")
	}

	if xcto := h.Get("X-Content-Type-Options"); xcto != "" {
		if strings.EqualFold(strings.TrimSpace(xcto), "nosniff") {
			score += 15
		}
	} else {
		add("missing_x_content_type_options", crawler.SeverityWarning, "Missing X-Content-Type-Options header",
			"Set to: nosniff")
	}

	if xfo := h.Get("X-Frame-Options"); xfo != "" {
		switch strings.ToUpper(strings.TrimSpace(xfo)) {
		case "DENY", "SAMEORIGIN":
			score += 20
		}
	} else {
		add("missing_x_frame_options", crawler.SeverityWarning, "Missing X-Frame-Options header",
			"Set to: DENY or SAMEORIGIN")
	}

	if h.Get("Referrer-Policy") != "" {
		score += 10
	} else {
		add("missing_referrer_policy", crawler.SeverityInfo, "Missing Referrer-Policy header",
			"Set to: strict-origin-when-cross-origin")
	}

	if h.Get("Permissions-Policy") != "" || h.Get("Feature-Policy") != "" {
		score += 15
	} else {
		add("missing_permissions_policy", crawler.SeverityInfo, "Missing Permissions-Policy header",
			"Disable unused features like camera, microphone")
	}

	return Result{
		Issues: issues,
		Metrics: map[string]float64{
			"score":         float64(score),
			"grade_ordinal": float64(gradeOrdinal(SecurityGrade(score))),
		},
	}, nil
}

// SecurityGrade maps a header score to a letter.
func SecurityGrade(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 80:
		return "B"
	case score >= 70:
		return "C"
	case score >= 60:
		return "D"
	default:
		return "F"
	}
}

// gradeOrdinal maps A..F to 4..0 so grades fit the numeric metric map.
func gradeOrdinal(grade string) int {
	switch grade {
	case "A":
		return 4
	case "B":
		return 3
	case "C":
		return 2
	case "D":
		return 1
	default:
		return 0
	}
}
