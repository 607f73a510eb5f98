package cheetah

import (
	"fmt"
	"image/color"

	"github.com/ByteArena/box2d"
	"github.com/fogleman/gg"
)

const (
	ViewportW float64 = 600
	ViewportH float64 = 300
	Scale     float64 = 120 // Pixels per meter
	groundY   float64 = 40  // Pixels from the bottom of the viewport
)

var (
	skyColour    = color.RGBA{R: 30, G: 30, B: 30, A: 255}
	groundColour = color.RGBA{R: 255, G: 166, B: 0, A: 255}
	torsoColour  = color.RGBA{R: 128, G: 102, B: 230, A: 255}
	legColour    = color.RGBA{R: 77, G: 77, B: 128, A: 255}
)

// worldToPixelCoord converts world coordinates to pixel coordinates in
// a viewport that follows the torso horizontally
func (c *Cheetah) worldToPixelCoord(v box2d.B2Vec2) (float64, float64) {
	centre := c.torso.GetPosition().X

	x := ViewportW/2 + Scale*(v.X-centre)
	y := ViewportH - groundY - Scale*v.Y

	return x, y
}

// drawBody fills each polygon fixture of a body
func (c *Cheetah) drawBody(dc *gg.Context, body *box2d.B2Body,
	colour color.Color) {
	for fix := body.GetFixtureList(); fix != nil; fix = fix.M_next {
		shape, ok := fix.M_shape.(*box2d.B2PolygonShape)
		if !ok {
			continue
		}

		dc.ClearPath()
		trans := fix.M_body.M_xf
		for i, vertex := range shape.M_vertices {
			if i >= shape.M_count {
				break
			}
			x, y := c.worldToPixelCoord(box2d.B2TransformVec2Mul(trans,
				vertex))
			dc.LineTo(x, y)
		}
		dc.ClosePath()

		dc.SetColor(colour)
		dc.Fill()
	}
}

// Render saves an image of the current state of the environment as a
// PNG file
func (c *Cheetah) Render(filename string) error {
	if c.torso == nil {
		return fmt.Errorf("render: environment has no body")
	}

	dc := gg.NewContext(int(ViewportW), int(ViewportH))
	dc.SetColor(skyColour)
	dc.Clear()

	// Ground
	dc.SetColor(groundColour)
	dc.SetLineWidth(4.0)
	dc.DrawLine(0, ViewportH-groundY, ViewportW, ViewportH-groundY)
	dc.Stroke()

	for _, segment := range c.segments {
		c.drawBody(dc, segment, legColour)
	}
	c.drawBody(dc, c.torso, torsoColour)

	if err := dc.SavePNG(filename); err != nil {
		return fmt.Errorf("render: could not save image: %v", err)
	}
	return nil
}
