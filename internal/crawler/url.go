package crawler

import (
	"net/url"
	"strings"
)

// resolveProductURL makes a product link extracted from a response absolute.
// Relative links are joined to the site's base product URL, or to the
// endpoint's scheme and host, and get the configured suffix appended.
// An empty link falls back to the request URL.
func resolveProductURL(site SiteConfig, link, requestURL string) string {
	link = strings.TrimSpace(link)
	if link == "" {
		return requestURL
	}

	if strings.HasPrefix(link, "//") {
		scheme := "https"
		if u, err := url.Parse(site.Endpoint); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		return scheme + ":" + link
	}
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}

	base := strings.TrimRight(site.BaseProductURL, "/")
	if base == "" {
		u, err := url.Parse(site.Endpoint)
		if err != nil || u.Host == "" {
			return requestURL
		}
		base = u.Scheme + "://" + u.Host
	}

	return base + "/" + strings.TrimLeft(link, "/") + site.URLSuffix
}

// siteOrigin returns the Origin header value for API requests
func siteOrigin(site SiteConfig) string {
	if site.Origin != "" {
		return strings.TrimRight(site.Origin, "/")
	}
	u, err := url.Parse(site.Endpoint)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
