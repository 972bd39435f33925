package extractor

import (
	"net/url"

	"golang.org/x/net/html"

	"github.com/fetchward/crawlkit/pkg/failure"
)

// ExtractionResult holds the extraction outcome.
// DocumentRoot is the original parsed HTML document.
// ContentNode is the extracted meaningful content node (semantic container).
type ExtractionResult struct {
	DocumentRoot *html.Node
	ContentNode  *html.Node
}

// Extractor is the scheduler-facing contract for main-content extraction.
// DomExtractor is the sole production implementation.
type Extractor interface {
	Extract(sourceUrl url.URL, htmlByte []byte) (ExtractionResult, failure.ClassifiedError)
	SetExtractParam(params ExtractParam)
}

// ContentScoreMultiplier weights the signals findBestContentContainer's
// scoring walk adds up per candidate node.
type ContentScoreMultiplier struct {
	NonWhitespaceDivisor float64
	Paragraphs           float64
	Headings             float64
	CodeBlocks           float64
	ListItems            float64
}

// MeaningfulThreshold gates whether a candidate node counts as
// meaningful content rather than boilerplate/navigation.
type MeaningfulThreshold struct {
	MinNonWhitespace    int
	MinHeadings         int
	MinParagraphsOrCode int
	MaxLinkDensity      float64
}

// ExtractParam configures the DomExtractor's scoring and thresholds,
// per §4.5's "prefer semantic main regions" heuristic. NewDomExtractor
// and SetExtractParam replace every zero-valued field with its built-in
// default, so the zero value runs with the default scoring and
// thresholds rather than with penalties and bias disabled.
type ExtractParam struct {
	BodySpecificityBias  float64
	LinkDensityThreshold float64
	ScoreMultiplier      ContentScoreMultiplier
	Threshold            MeaningfulThreshold
}
