package crawler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"sjsage522/pricecompare/logger"
)

type sitesFile struct {
	Sites []SiteConfig `yaml:"sites"`
}

// legacySiteKeys are the key names of older stores rows, read when the
// current key is absent
type legacySiteKeys struct {
	Sitio      string `json:"sitio" yaml:"sitio"`
	TitleXPath string `json:"title_xpath" yaml:"title_xpath"`
	PriceXPath string `json:"price_xpath" yaml:"price_xpath"`
	URLXPath   string `json:"url_xpath" yaml:"url_xpath"`
}

func (l legacySiteKeys) fill(s *SiteConfig) {
	if s.Name == "" {
		s.Name = l.Sitio
	}
	if s.TitlePath == "" {
		s.TitlePath = l.TitleXPath
	}
	if s.PricePath == "" {
		s.PricePath = l.PriceXPath
	}
	if s.URLPath == "" {
		s.URLPath = l.URLXPath
	}
}

// plainSite decodes without the legacy key fallback
type plainSite SiteConfig

// UnmarshalJSON implements json.Unmarshaler
func (s *SiteConfig) UnmarshalJSON(data []byte) error {
	if err := apiJSON.Unmarshal(data, (*plainSite)(s)); err != nil {
		return err
	}
	var legacy legacySiteKeys
	if err := apiJSON.Unmarshal(data, &legacy); err != nil {
		return err
	}
	legacy.fill(s)
	return nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (s *SiteConfig) UnmarshalYAML(node *yaml.Node) error {
	if err := node.Decode((*plainSite)(s)); err != nil {
		return err
	}
	var legacy legacySiteKeys
	if err := node.Decode(&legacy); err != nil {
		return err
	}
	legacy.fill(s)
	return nil
}

// LoadSites reads site configurations from a YAML or JSON file. The file is
// either a list of sites or an object with a "sites" list.
func LoadSites(path string) ([]SiteConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sites file: %w", err)
	}
	return ParseSites(data)
}

// ParseSites decodes site configurations from YAML or JSON
func ParseSites(data []byte) ([]SiteConfig, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse sites: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	doc := root.Content[0]
	switch doc.Kind {
	case yaml.SequenceNode:
		var sites []SiteConfig
		if err := doc.Decode(&sites); err != nil {
			return nil, fmt.Errorf("failed to decode sites: %w", err)
		}
		return sites, nil
	case yaml.MappingNode:
		var file sitesFile
		if err := doc.Decode(&file); err != nil {
			return nil, fmt.Errorf("failed to decode sites: %w", err)
		}
		return file.Sites, nil
	default:
		return nil, fmt.Errorf("sites must be a list or an object with a sites list")
	}
}

// DecodeSite decodes one site configuration stored as JSON
func DecodeSite(name string, data []byte) (SiteConfig, error) {
	var site SiteConfig
	if err := apiJSON.Unmarshal(data, &site); err != nil {
		return SiteConfig{}, fmt.Errorf("failed to decode site %s: %w", name, err)
	}
	if site.Name == "" {
		site.Name = name
	}
	return site, nil
}

// ActiveSites drops disabled and misconfigured sites, logging why each was skipped
func ActiveSites(sites []SiteConfig) []SiteConfig {
	active := make([]SiteConfig, 0, len(sites))
	for _, site := range sites {
		if site.Disabled {
			continue
		}
		if err := site.Validate(); err != nil {
			logger.ForSite(site.Name).Warn().Err(err).Msg("Skipping misconfigured site")
			continue
		}
		active = append(active, site)
	}
	return active
}
