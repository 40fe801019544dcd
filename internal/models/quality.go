package models

import "slices"

// ImageCatalog maps image-generation model IDs to the qualities each one
// accepts, in display order.
type ImageCatalog struct {
	order     []string
	qualities map[string][]string
}

// DefaultImageConfigModel is the image catalog model used when none is named.
const DefaultImageConfigModel = "gpt-image-1"

// DefaultImageCatalog returns the built-in image quality table.
func DefaultImageCatalog() *ImageCatalog {
	c := &ImageCatalog{qualities: map[string][]string{}}
	c.add("gpt-image-1", "standard", "hd")
	c.add("dall-e-3", "standard", "hd")
	c.add("gemini-2.5-flash-image-preview", "default")
	c.add("stabilityai/stable-diffusion-3-medium", "standard")
	c.add("black-forest-labs/FLUX.1-schnell", "standard")
	return c
}

func (c *ImageCatalog) add(model string, qualities ...string) {
	c.order = append(c.order, model)
	c.qualities[model] = qualities
}

// Has reports whether model is in the catalog.
func (c *ImageCatalog) Has(model string) bool {
	_, ok := c.qualities[model]
	return ok
}

// Qualities returns the accepted qualities for model (nil if unknown).
func (c *ImageCatalog) Qualities(model string) []string {
	return slices.Clone(c.qualities[model])
}

// AllowsQuality reports whether quality is enumerated for model.
func (c *ImageCatalog) AllowsQuality(model, quality string) bool {
	return slices.Contains(c.qualities[model], quality)
}

// Models returns catalog model IDs in table order.
func (c *ImageCatalog) Models() []string {
	return slices.Clone(c.order)
}
