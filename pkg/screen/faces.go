package screen

import (
	"fmt"
	"image"
	"math"
	"path/filepath"

	"github.com/fogleman/gg"
)

// FaceNames are the eye images the robot can show.
var FaceNames = []string{
	"angry", "awake", "bottom_left", "bottom_right", "crazy_1", "crazy_2",
	"dizzy", "down", "evil", "knocked_out", "middle_left", "middle_right",
	"neutral", "pinched_left", "pinched_middle", "pinched_right", "sleeping",
	"tired_left", "tired_middle", "tired_right", "up", "winking",
}

// LoadFaces loads <dir>/<name>.png for each face.  Missing images are
// skipped; those faces are drawn instead.
func LoadFaces(dir string) map[string]image.Image {
	faces := map[string]image.Image{}
	if dir == "" {
		return faces
	}
	for _, name := range FaceNames {
		img, err := gg.LoadPNG(filepath.Join(dir, name+".png"))
		if err != nil {
			continue
		}
		faces[name] = img
	}
	fmt.Printf("Loaded %d/%d eye images from %s\n", len(faces), len(FaceNames), dir)
	return faces
}

type eyeShape struct {
	// Pupil offset in units of the eye radius.
	dx, dy float64
	// Lid covers this fraction of the eye from the top.
	lid float64
	// Cross eyes for knock-outs.
	crossed bool
}

var eyeShapes = map[string][2]eyeShape{
	"angry":          {{lid: 0.4}, {lid: 0.4}},
	"awake":          {{}, {}},
	"bottom_left":    {{dx: -0.4, dy: 0.4}, {dx: -0.4, dy: 0.4}},
	"bottom_right":   {{dx: 0.4, dy: 0.4}, {dx: 0.4, dy: 0.4}},
	"crazy_1":        {{dx: -0.4, dy: -0.3}, {dx: 0.4, dy: 0.3}},
	"crazy_2":        {{dx: 0.4, dy: -0.3}, {dx: -0.4, dy: 0.3}},
	"dizzy":          {{crossed: true}, {dx: 0.2, dy: 0.2}},
	"down":           {{dy: 0.5}, {dy: 0.5}},
	"evil":           {{lid: 0.5, dy: 0.2}, {lid: 0.5, dy: 0.2}},
	"knocked_out":    {{crossed: true}, {crossed: true}},
	"middle_left":    {{dx: -0.5}, {dx: -0.5}},
	"middle_right":   {{dx: 0.5}, {dx: 0.5}},
	"neutral":        {{lid: 0.15}, {lid: 0.15}},
	"pinched_left":   {{dx: -0.4, lid: 0.6}, {dx: -0.4, lid: 0.6}},
	"pinched_middle": {{lid: 0.6}, {lid: 0.6}},
	"pinched_right":  {{dx: 0.4, lid: 0.6}, {dx: 0.4, lid: 0.6}},
	"sleeping":       {{lid: 0.95}, {lid: 0.95}},
	"tired_left":     {{dx: -0.4, lid: 0.45}, {dx: -0.4, lid: 0.45}},
	"tired_middle":   {{lid: 0.45}, {lid: 0.45}},
	"tired_right":    {{dx: 0.4, lid: 0.45}, {dx: 0.4, lid: 0.45}},
	"up":             {{dy: -0.5}, {dy: -0.5}},
	"winking":        {{}, {lid: 0.95}},
}

// drawEyes draws the face in the box (0,0)-(w,h).
func drawEyes(dc *gg.Context, name string, w, h float64) {
	shapes, ok := eyeShapes[name]
	if !ok {
		shapes = eyeShapes["awake"]
	}
	r := math.Min(w/4, h/2) * 0.8
	for i, shape := range shapes {
		cx := w/4 + float64(i)*w/2
		cy := h / 2

		dc.SetRGB(1, 1, 1)
		dc.DrawEllipse(cx, cy, r, r*0.8)
		dc.Fill()

		if shape.crossed {
			dc.SetRGB(0, 0, 0)
			dc.SetLineWidth(3)
			dc.DrawLine(cx-r/2, cy-r/2, cx+r/2, cy+r/2)
			dc.DrawLine(cx-r/2, cy+r/2, cx+r/2, cy-r/2)
			dc.Stroke()
			continue
		}

		dc.SetRGB(0, 0, 0)
		dc.DrawCircle(cx+shape.dx*r*0.5, cy+shape.dy*r*0.4, r*0.35)
		dc.Fill()

		if shape.lid > 0 {
			dc.DrawRectangle(cx-r-1, cy-r*0.8-1, 2*r+2, 2*r*0.8*shape.lid+1)
			dc.Fill()
		}
	}
}
