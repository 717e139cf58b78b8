package detect

import (
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/rundir"
	"github.com/jingkaihe/webskill/pkg/types/snapshot"
)

// depthPalette cycles outline colours by tree depth.
var depthPalette = []color.RGBA{
	{240, 64, 64, 255},
	{255, 140, 0, 255},
	{255, 210, 60, 255},
	{64, 200, 80, 255},
	{60, 200, 200, 255},
	{60, 140, 255, 255},
	{64, 64, 255, 255},
	{160, 80, 255, 255},
	{230, 60, 230, 255},
}

// OverlayOptions tune DrawOverlay.
type OverlayOptions struct {
	MinThickness int `mapstructure:"min_thickness"`
	MaxThickness int `mapstructure:"max_thickness"`
	// FillAlpha tints each box interior when > 0.
	FillAlpha uint8 `mapstructure:"fill_alpha"`
	// UsePageBBox draws page-space boxes, for full-page screenshots.
	UsePageBBox bool `mapstructure:"use_page_bbox"`
}

// DefaultOverlayOptions draws 1..6 px outlines with no fill.
func DefaultOverlayOptions() OverlayOptions {
	return OverlayOptions{MinThickness: 1, MaxThickness: 6}
}

// NodeDepths returns each node's distance from its root.
func NodeDepths(tree *snapshot.ControlsTree) map[string]int {
	byID := tree.ByID()
	depths := make(map[string]int, len(tree.Nodes))
	var depth func(id string, guard int) int
	depth = func(id string, guard int) int {
		if d, ok := depths[id]; ok {
			return d
		}
		n, ok := byID[id]
		if !ok || n.Parent == nil || guard > len(tree.Nodes) {
			return 0
		}
		if _, ok := byID[*n.Parent]; !ok {
			return 0
		}
		d := depth(*n.Parent, guard+1) + 1
		depths[id] = d
		return d
	}
	for _, n := range tree.Nodes {
		depths[n.ID] = depth(n.ID, 0)
	}
	return depths
}

// Thickness maps depth to outline width: roots are thickest.
func Thickness(depth, maxDepth, minT, maxT int) int {
	if maxDepth <= 0 {
		return maxT
	}
	span := max(1, maxT-minT)
	t := minT + int(math.Round(float64(span)*float64(maxDepth-depth)/float64(maxDepth)))
	return min(max(t, minT), maxT)
}

// DrawOverlay outlines every tree node on the screenshot.
func DrawOverlay(src image.Image, tree *snapshot.ControlsTree, opts OverlayOptions) *image.RGBA {
	if opts.MinThickness <= 0 {
		opts.MinThickness = 1
	}
	if opts.MaxThickness < opts.MinThickness {
		opts.MaxThickness = opts.MinThickness
	}
	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	depths := NodeDepths(tree)
	maxDepth := 0
	for _, d := range depths {
		maxDepth = max(maxDepth, d)
	}
	for _, n := range tree.Nodes {
		box := n.Geom.BBox
		if opts.UsePageBBox && n.Geom.PageBBox != nil {
			box = *n.Geom.PageBBox
		}
		if box.Empty() {
			continue
		}
		d := depths[n.ID]
		c := depthPalette[d%len(depthPalette)]
		r := image.Rect(int(box.X()), int(box.Y()), int(box.X()+box.W()), int(box.Y()+box.H())).
			Add(bounds.Min).Intersect(bounds)
		if r.Empty() {
			continue
		}
		if opts.FillAlpha > 0 {
			fill := color.NRGBA{c.R, c.G, c.B, opts.FillAlpha}
			draw.Draw(dst, r, image.NewUniform(fill), image.Point{}, draw.Over)
		}
		outline(dst, r, Thickness(d, maxDepth, opts.MinThickness, opts.MaxThickness), c)
	}
	return dst
}

func outline(dst *image.RGBA, r image.Rectangle, t int, c color.RGBA) {
	t = min(t, r.Dx(), r.Dy())
	u := image.NewUniform(c)
	for _, side := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, side, u, image.Point{}, draw.Src)
	}
}

// OverlayRun draws the run's controls tree over its loaded screenshot and
// writes overlay.png.
func OverlayRun(dir rundir.Dir, opts OverlayOptions) (string, error) {
	tree, err := dir.ControlsTree()
	if err != nil {
		return "", err
	}
	shot := dir.Path(rundir.ScreenshotLoaded)
	if !rundir.Exists(shot) {
		shot = dir.Path(rundir.ScreenshotInitial)
	}
	f, err := os.Open(shot)
	if err != nil {
		return "", errors.Wrap(err, "failed to open screenshot")
	}
	src, err := png.Decode(f)
	f.Close()
	if err != nil {
		return "", errors.Wrapf(err, "failed to decode %s", shot)
	}

	out := dir.Path(rundir.OverlayFile)
	w, err := os.Create(out)
	if err != nil {
		return "", errors.Wrap(err, "failed to create overlay")
	}
	defer w.Close()
	if err := png.Encode(w, DrawOverlay(src, tree, opts)); err != nil {
		return "", errors.Wrap(err, "failed to encode overlay")
	}
	return out, nil
}
