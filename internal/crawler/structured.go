package crawler

import (
	"context"
	"net/http"

	"sjsage522/pricecompare/internal/pathexpr"
	"sjsage522/pricecompare/internal/price"
	"sjsage522/pricecompare/internal/textmatch"
	"sjsage522/pricecompare/logger"
	"sjsage522/pricecompare/pkg/errors"
)

// MaxCandidates bounds how many results of a structured response are scored
const MaxCandidates = 10

// StructuredStrategy resolves prices from JSON APIs (GraphQL or REST).
// Every candidate in the scanned window is scored and the best relevant one wins.
type StructuredStrategy struct {
	*BaseFetcher
}

// NewStructuredStrategy creates a new structured API strategy
func NewStructuredStrategy(base *BaseFetcher) *StructuredStrategy {
	return &StructuredStrategy{BaseFetcher: base}
}

// Resolve implements Strategy
func (s *StructuredStrategy) Resolve(ctx context.Context, site SiteConfig, query SearchQuery) (*ScrapeResult, error) {
	log := logger.ForSite(site.Name)

	payload := buildPayload(site.RequestTemplate, query)

	var (
		requestURL = site.Endpoint
		method     = http.MethodPost
		body       []byte
		err        error
	)
	if site.UsesURLEmbeddedVariables {
		method = http.MethodGet
		requestURL, err = embedVariables(site.Endpoint, payload)
		if err != nil {
			return nil, errors.NewConfiguration(site.Name, "failed to encode url variables", err)
		}
	} else {
		body, err = apiJSON.Marshal(payload)
		if err != nil {
			return nil, errors.NewConfiguration(site.Name, "failed to encode payload", err)
		}
	}

	log.Debug().Str("method", method).Str("url", requestURL).Msg("Querying API")

	raw, err := s.fetchJSON(ctx, site.Name, method, requestURL, body, siteOrigin(site))
	if err != nil {
		if errors.TypeOf(err) == errors.ErrorTypeNetwork {
			log.Debug().RawJSON("payload", payloadForLog(body)).Msg("Failed request payload")
		}
		return nil, err
	}
	if logger.IsDebugEnabled() {
		s.dump(site.Name, "json", raw)
	}

	var data any
	if err := apiJSON.Unmarshal(raw, &data); err != nil {
		s.dump(site.Name, "json", raw)
		log.Warn().Err(err).Str("body", preview(raw)).Msg("Response is not JSON")
		return nil, errors.NewParsing(site.Name, "response is not valid JSON", err)
	}

	best, found := bestCandidate(site, query, data, requestURL)
	if !found {
		log.Info().Str("search_term", query.SearchTerm).Msg("No relevant result")
		return nil, nil
	}

	log.Info().
		Str("title", best.Title).
		Str("price", best.Price).
		Int("score", best.Score).
		Msg("Best match found")

	return newResult(site, query, best), nil
}

// bestCandidate scores up to MaxCandidates results, stopping at the first
// index without a title. Ties keep the earlier candidate.
func bestCandidate(site SiteConfig, query SearchQuery, data any, requestURL string) (Candidate, bool) {
	log := logger.ForSite(site.Name)

	var (
		best  Candidate
		found bool
	)
	for k := 0; k < MaxCandidates; k++ {
		title, ok := pathexpr.String(data, pathexpr.WithIndex(site.TitlePath, k))
		if !ok {
			break
		}

		score, relevant := textmatch.Score(query.SearchTerm, title)
		log.Debug().Int("index", k).Str("title", title).Int("score", score).Msg("Candidate")

		if !relevant || (found && score <= best.Score) {
			continue
		}

		candidate := Candidate{Title: title, Score: score, URL: requestURL}
		if site.PricePath != "" {
			if rawPrice, ok := pathexpr.String(data, pathexpr.WithIndex(site.PricePath, k)); ok {
				candidate.Price = price.Format(rawPrice)
			}
		}
		if site.URLPath != "" {
			if link, ok := pathexpr.String(data, pathexpr.WithIndex(site.URLPath, k)); ok {
				candidate.URL = resolveProductURL(site, link, requestURL)
			}
		}

		best, found = candidate, true
	}
	return best, found
}

func preview(raw []byte) string {
	const limit = 500
	if len(raw) > limit {
		return string(raw[:limit])
	}
	return string(raw)
}

func payloadForLog(body []byte) []byte {
	if len(body) == 0 {
		return []byte("null")
	}
	return body
}
