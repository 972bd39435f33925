package extractor

// KnownContentSelectors contains CMS/template-specific main-content
// container selectors, used as a Layer 2 heuristic when semantic
// containers (Layer 1, <main>/<article>/[role=main]) are absent or
// fail the minimum-length check. Per §4.5, extraction prefers semantic
// main regions; this table is the fallback for the common templating
// systems a host-allowlisted general-purpose crawl is likely to hit
// when a page carries no semantic markup at all.
//
// Each slice contains selectors for a specific CMS/template family,
// ordered by specificity and reliability based on trained data.
//
//nolint:gochecknoglobals // This is a static lookup table that must be global
var KnownContentSelectors = map[string][]string{
	"generic": {
		// Core content selectors (template-agnostic)
		".content",
		"#content",
		".main-content",
		"#main-content",
		".page-content",
		".post-content",
		".entry-content",
	},
	"wordpress": {
		// WordPress (classic + block themes)
		".entry-content",
		"article.post",
		"#primary .entry-content",
	},
	"news": {
		// Generic news/editorial templates
		".article-body",
		".story-body",
		"[itemprop='articleBody']",
	},
	"medium": {
		// Medium and Medium-like publishing platforms
		"article section",
		".postArticle-content",
	},
	"ghost": {
		// Ghost CMS
		".post-content",
		".gh-content",
	},
	"drupal": {
		// Drupal
		".field--name-body",
		"#block-system-main .content",
	},
	"shopify": {
		// Shopify storefronts (product/collection copy)
		".rte",
		".product-single__description",
	},
	"squarespace": {
		// Squarespace
		".sqs-block-content",
	},
	"wix": {
		// Wix
		"[data-testid='richTextElement']",
	},
}

// getAllSelectors returns a flattened, prioritized list of all known
// CMS/template content selectors. Order matters: generic selectors are
// checked first, then template-specific selectors in priority order.
func getAllSelectors() []string {
	// Priority order for template categories
	templateOrder := []string{
		"generic",
		"wordpress",
		"news",
		"ghost",
		"medium",
		"drupal",
		"shopify",
		"squarespace",
		"wix",
	}

	var allSelectors []string
	seen := make(map[string]bool)

	for _, template := range templateOrder {
		selectors := KnownContentSelectors[template]
		for _, selector := range selectors {
			if !seen[selector] {
				seen[selector] = true
				allSelectors = append(allSelectors, selector)
			}
		}
	}

	return allSelectors
}

// mergeSelectors combines default selectors with user-provided custom selectors,
// deduplicating to ensure each selector appears only once.
func mergeSelectors(defaultSelectors, customSelectors []string) []string {
	seen := make(map[string]bool)
	var merged []string

	// Add defaults first
	for _, selector := range defaultSelectors {
		if !seen[selector] {
			seen[selector] = true
			merged = append(merged, selector)
		}
	}

	// Add custom selectors, skipping duplicates
	for _, selector := range customSelectors {
		if !seen[selector] {
			seen[selector] = true
			merged = append(merged, selector)
		}
	}

	return merged
}
