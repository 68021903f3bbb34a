package crawler

import (
	"bytes"
	"context"
	"io"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"sjsage522/pricecompare/internal/price"
	"sjsage522/pricecompare/internal/textmatch"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
)

// DocumentStrategy resolves prices from sites answering with HTML.
// Only the first search result is considered: markup catalogs are expected
// to list the most relevant product first.
type DocumentStrategy struct {
	*BaseFetcher
}

// NewDocumentStrategy creates a new document strategy
func NewDocumentStrategy(base *BaseFetcher) *DocumentStrategy {
	return &DocumentStrategy{BaseFetcher: base}
}

// Resolve implements Strategy
func (s *DocumentStrategy) Resolve(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error) {
	log := logger.ForSite(site.Name)

	requestURL := appendQuery(site.Endpoint, buildQueryParams(site.RequestTemplate, query))
	log.Debug().Str("url", requestURL).Msg("Querying markup site")

	body, err := s.fetchMarkup(ctx, site.Name, requestURL)
	if err != nil {
		return nil, err
	}

	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, errors.NewNetwork(site.Name, "failed to read response body", err)
	}
	if logger.IsDebugEnabled() {
		s.dump(site.Name, "html", raw)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw))
	if err != nil {
		s.dump(site.Name, "html", raw)
		return nil, errors.NewParsing(site.Name, "failed to parse HTML", err)
	}

	title, found, err := firstMatch(doc, site.TitlePath, false)
	if err != nil {
		return nil, errors.NewConfiguration(site.Name, "invalid title_path", err)
	}
	if !found {
		log.Warn().Str("title_path", site.TitlePath).Msg("No title found")
		return nil, nil
	}

	score, relevant := textmatch.Score(query.SearchTerm, title)
	log.Debug().Str("title", title).Int("score", score).Msg("First result")
	if !relevant {
		log.Info().Str("title", title).Int("score", score).Msg("First result is not relevant")
		return nil, nil
	}

	candidate := Candidate{Title: title, Score: score, URL: requestURL}

	if site.PricePath != "" {
		rawPrice, found, err := firstMatch(doc, site.PricePath, false)
		if err != nil {
			return nil, errors.NewConfiguration(site.Name, "invalid price_path", err)
		}
		if found {
			candidate.Price = price.Format(rawPrice)
		} else {
			log.Debug().Str("price_path", site.PricePath).Msg("No price found")
		}
	}

	if site.URLPath != "" {
		link, found, err := firstMatch(doc, site.URLPath, true)
		if err != nil {
			return nil, errors.NewConfiguration(site.Name, "invalid url_path", err)
		}
		if found {
			candidate.URL = resolveProductURL(site, link, requestURL)
		}
	}

	log.Info().
		Str("title", candidate.Title).
		Str("price", candidate.Price).
		Int("score", candidate.Score).
		Msg("Match found")

	return newResult(site, query, candidate), nil
}

// isXPath reports whether path should be evaluated as XPath rather than
// as a CSS selector
func isXPath(path string) bool {
	return strings.HasPrefix(path, "/") || strings.HasPrefix(path, "(") || strings.HasPrefix(path, "./")
}

// firstMatch returns the text of the first node matching path. With wantLink
// the href attribute of an element is preferred over its text.
func firstMatch(doc *goquery.Document, path string, wantLink bool) (string, bool, error) {
	if isXPath(path) {
		if len(doc.Nodes) == 0 {
			return "", false, nil
		}
		nodes, err := htmlquery.QueryAll(doc.Nodes[0], path)
		if err != nil {
			return "", false, err
		}
		if len(nodes) == 0 {
			return "", false, nil
		}
		return nodeValue(nodes[0], wantLink)
	}

	sel := doc.Find(path).First()
	if sel.Length() == 0 {
		return "", false, nil
	}
	if wantLink {
		if href, ok := sel.Attr("href"); ok && strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href), true, nil
		}
	}
	text := collapse(sel.Text())
	if text == "" {
		if attr, ok := sel.Attr("title"); ok {
			text = collapse(attr)
		}
	}
	return text, text != "", nil
}

func nodeValue(n *html.Node, wantLink bool) (string, bool, error) {
	if wantLink && n.Type == html.ElementNode {
		if href := htmlquery.SelectAttr(n, "href"); strings.TrimSpace(href) != "" {
			return strings.TrimSpace(href), true, nil
		}
	}
	text := collapse(htmlquery.InnerText(n))
	if text == "" && n.Type == html.ElementNode {
		text = collapse(htmlquery.SelectAttr(n, "title"))
	}
	return text, text != "", nil
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
