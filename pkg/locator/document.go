package locator

import (
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/cascadia"
	"github.com/pkg/errors"
)

// Document is a parsed dom.html used to check selector liveness offline.
type Document struct {
	doc *goquery.Document
}

// NewDocument parses HTML from r.
func NewDocument(r io.Reader) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse html")
	}
	return &Document{doc: doc}, nil
}

// LoadDocument parses the HTML file at path.
func LoadDocument(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", path)
	}
	defer f.Close()
	return NewDocument(f)
}

// Count returns how many nodes match selector. A comma list matches the
// nodes of any alternative once. Invalid selectors count as zero.
func (d *Document) Count(selector string) int {
	sel, err := cascadia.Compile(strings.TrimSpace(selector))
	if err != nil {
		return 0
	}
	return d.doc.FindMatcher(sel).Length()
}

// Alive reports whether selector matches at least one node.
func (d *Document) Alive(selector string) bool {
	return d.Count(selector) > 0
}

// AliveMap checks every selector and returns selector -> alive.
func (d *Document) AliveMap(selectors []string) map[string]bool {
	out := make(map[string]bool, len(selectors))
	for _, s := range selectors {
		out[s] = d.Alive(s)
	}
	return out
}
