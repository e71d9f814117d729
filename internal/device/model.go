package device

import "fmt"

// Model identifies a keyboard model.
type Model string

// Supported models.
const (
	ModelAny   Model = "any"
	ModelMK750 Model = "mk750"
	ModelMK730 Model = "mk730"
	ModelMK850 Model = "mk850"
	ModelSK630 Model = "sk630"
	ModelSK650 Model = "sk650"
	ModelRGBL  Model = "rgb_l"
	ModelRGBM  Model = "rgb_m"
	ModelRGBS  Model = "rgb_s"
)

var knownModels = map[Model]bool{
	ModelAny:   true,
	ModelMK750: true,
	ModelMK730: true,
	ModelMK850: true,
	ModelSK630: true,
	ModelSK650: true,
	ModelRGBL:  true,
	ModelRGBM:  true,
	ModelRGBS:  true,
}

// ParseModel validates a model name. An empty name means ModelAny.
func ParseModel(s string) (Model, error) {
	if s == "" {
		return ModelAny, nil
	}
	m := Model(s)
	if !knownModels[m] {
		return "", fmt.Errorf("unknown keyboard model %q", s)
	}
	return m, nil
}

// Layout returns the LED matrix for the model.
func (m Model) Layout() Layout {
	return Layout{Rows: MaxRows, Cols: MaxCols}
}
