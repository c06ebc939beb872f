package registry

import (
	"time"

	"github.com/reusedev/gen-hub/internal/consts"
	"github.com/reusedev/gen-hub/internal/modules/cache"
)

// ParamKind is the declared type of a model parameter.
type ParamKind string

const (
	ParamNumber ParamKind = "number"
	ParamEnum   ParamKind = "enum"
	ParamString ParamKind = "string"
)

// ParamSpec declares one parameter's constraints. Number params with
// Min < Max are clamped when out of range; enum params reject unknown
// values outright.
type ParamSpec struct {
	Kind     ParamKind
	Min      float64
	Max      float64
	Enum     []string
	Required []consts.Mode
}

func (p ParamSpec) RequiredFor(mode consts.Mode) bool {
	for _, m := range p.Required {
		if m == mode {
			return true
		}
	}
	return false
}

// Schema describes one model in the catalog.
type Schema struct {
	Id       string
	Modes    []consts.Mode
	Params   map[string]ParamSpec
	UnitCost float64
	Provider string
}

func (s *Schema) SupportsMode(mode consts.Mode) bool {
	for _, m := range s.Modes {
		if m == mode {
			return true
		}
	}
	return false
}

// Registry is the model-schema catalog. Lookups go through the in-memory
// cache so hot pipeline paths do not rebuild schema structs per request.
type Registry struct {
	catalog map[string]*Schema
	cache   *cache.Manager[*Schema]
}

func New() *Registry {
	return &Registry{
		catalog: builtinCatalog(),
		cache:   cache.NewManager[*Schema](5*time.Minute, 5*time.Minute),
	}
}

// Schema returns the model's schema, or nil when the model id is unknown.
func (r *Registry) Schema(modelId string) *Schema {
	if s, err := r.cache.GetValue(modelId); err == nil && s != nil {
		return s
	}
	s, ok := r.catalog[modelId]
	if !ok {
		return nil
	}
	r.cache.SetWithExpiration(modelId, s, 5*time.Minute)
	return s
}

// EstimateCost prices a request before dispatch: unit cost times the
// requested output count.
func (r *Registry) EstimateCost(s *Schema, params map[string]any) float64 {
	count := 1.0
	if n, ok := params["n"]; ok {
		if f, ok := toFloat(n); ok && f > 0 {
			count = f
		}
	}
	return s.UnitCost * count
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func builtinCatalog() map[string]*Schema {
	models := []*Schema{
		{
			Id:       "sd-turbo-v2",
			Modes:    []consts.Mode{consts.ModeImages},
			UnitCost: 0.04,
			Provider: "genapi",
			Params: map[string]ParamSpec{
				"guidance_scale": {Kind: ParamNumber, Min: 1, Max: 10},
				"steps":          {Kind: ParamNumber, Min: 1, Max: 50},
				"n":              {Kind: ParamNumber, Min: 1, Max: 4},
				"size":           {Kind: ParamEnum, Enum: []string{"512x512", "768x768", "1024x1024"}, Required: []consts.Mode{consts.ModeImages}},
			},
		},
		{
			Id:       "motion-1",
			Modes:    []consts.Mode{consts.ModeVideo},
			UnitCost: 0.60,
			Provider: "genapi",
			Params: map[string]ParamSpec{
				"duration_s":     {Kind: ParamNumber, Min: 1, Max: 10, Required: []consts.Mode{consts.ModeVideo}},
				"guidance_scale": {Kind: ParamNumber, Min: 1, Max: 12},
				"fps":            {Kind: ParamEnum, Enum: []string{"12", "24", "30"}},
			},
		},
		{
			Id:       "upscale-x4",
			Modes:    []consts.Mode{consts.ModeEnhance},
			UnitCost: 0.02,
			Provider: "genapi",
			Params: map[string]ParamSpec{
				"scale":    {Kind: ParamEnum, Enum: []string{"2", "4"}, Required: []consts.Mode{consts.ModeEnhance}},
				"denoise":  {Kind: ParamNumber, Min: 0, Max: 1},
				"face_fix": {Kind: ParamString},
			},
		},
	}
	catalog := make(map[string]*Schema, len(models))
	for _, m := range models {
		catalog[m.Id] = m
	}
	return catalog
}
