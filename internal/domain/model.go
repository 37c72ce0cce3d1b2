package domain

import "fmt"

// DefaultModel is the CLIP variant used when none is configured.
const DefaultModel = "ViT-B/32"

var featureDims = map[string]int{
	"RN50":           1024,
	"RN101":          512,
	"RN50x4":         640,
	"RN50x16":        768,
	"RN50x64":        1024,
	"ViT-B/32":       512,
	"ViT-B/16":       512,
	"ViT-L/14":       768,
	"ViT-L/14@336px": 768,
}

// FeatureDim returns the embedding length for a known CLIP model.
func FeatureDim(model string) (int, error) {
	if d, ok := featureDims[model]; ok {
		return d, nil
	}
	return 0, fmt.Errorf("unknown model %q: set embedding.dimensions explicitly", model)
}

// ResolveFeatureDim returns override when positive, else the table value for model.
func ResolveFeatureDim(model string, override int) (int, error) {
	if override > 0 {
		return override, nil
	}
	return FeatureDim(model)
}
