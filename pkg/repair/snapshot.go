// Package repair diagnoses skills that no longer fit a page and repairs
// their locators and preconditions from a newer detection run.
package repair

import (
	"github.com/jingkaihe/webskill/pkg/locator"
	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// Snapshot is the part of a run directory repair looks at.
type Snapshot struct {
	Dir      rundir.Dir
	Elements []snapshot.Element
	// Doc is the parsed dom.html, nil when the run has none.
	Doc *locator.Document
}

// LoadSnapshot reads the DOM summary and dom.html of a run. Missing
// artifacts leave the corresponding fields empty.
func LoadSnapshot(dir rundir.Dir) (*Snapshot, error) {
	s := &Snapshot{Dir: dir}
	if rundir.Exists(dir.Path(rundir.DomSummaryFile)) {
		sum, err := dir.DomSummary()
		if err != nil {
			return nil, err
		}
		s.Elements = sum.Elements
	}
	if p := dir.Path(rundir.DOMHTML); rundir.Exists(p) {
		doc, err := locator.LoadDocument(p)
		if err != nil {
			return nil, err
		}
		s.Doc = doc
	}
	return s, nil
}

// Find returns the first summary element a selector targets.
func (s *Snapshot) Find(selector string) (snapshot.Element, bool) {
	return locator.FindElement(s.Elements, selector)
}

// Exists reports whether selector targets an element of the summary or,
// when available, a node of dom.html.
func (s *Snapshot) Exists(selector string) bool {
	if _, ok := s.Find(selector); ok {
		return true
	}
	return s.Doc != nil && s.Doc.Alive(selector)
}
