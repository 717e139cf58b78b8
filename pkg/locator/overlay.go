package locator

import (
	"sort"
	"strings"

	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// OverlayKeywords are class fragments that indicate blocking overlays.
var OverlayKeywords = []string{
	"modal", "mask", "backdrop", "overlay", "dialog", "drawer", "popup",
	"toast", "tooltip", "snackbar", "loading", "spinner", "progress", "skeleton",
}

// overlayGroups maps keywords to the generic not_exists selector group.
// popup and tooltip are detected but have no guard group.
var overlayGroups = []struct {
	keywords []string
	selector string
}{
	{[]string{"modal"}, ".modal,.modal-mask,.ant-modal-wrap"},
	{[]string{"mask", "backdrop"}, ".mask,.backdrop,.MuiBackdrop-root"},
	{[]string{"overlay"}, ".overlay"},
	{[]string{"dialog", "drawer"}, ".dialog,.drawer"},
	{[]string{"toast", "snackbar"}, ".toast,.snackbar"},
	{[]string{"loading", "spinner", "progress", "skeleton"}, ".loading,.spinner,.progress,.skeleton"},
}

// OverlayHits returns the sorted overlay keywords found in element classes.
func OverlayHits(elements []snapshot.Element) []string {
	hits := make(map[string]bool)
	for _, e := range elements {
		cls := strings.ToLower(e.Class)
		if cls == "" {
			continue
		}
		for _, k := range OverlayKeywords {
			if strings.Contains(cls, k) {
				hits[k] = true
			}
		}
	}
	out := make([]string, 0, len(hits))
	for k := range hits {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// OverlayGroups maps keyword hits to selector groups in fixed group order.
func OverlayGroups(hits []string) []string {
	set := make(map[string]bool, len(hits))
	for _, h := range hits {
		set[h] = true
	}
	var out []string
	for _, g := range overlayGroups {
		for _, k := range g.keywords {
			if set[k] {
				out = append(out, g.selector)
				break
			}
		}
	}
	return out
}

// NotExistsGuards returns the sorted overlay selector groups for a page.
func NotExistsGuards(elements []snapshot.Element) []string {
	out := OverlayGroups(OverlayHits(elements))
	sort.Strings(out)
	return out
}
