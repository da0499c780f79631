// Package segmentation extracts geometric structure from surfel point sets:
// plane fits, support planes, oriented bounding boxes, connected regions and
// planar grids.
package segmentation

import (
	"math"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pkg/errors"
	"go.viam.com/utils"
)

// Config holds the tunables of the segmentation utilities. Distances are in
// world units and angles in radians.
type Config struct {
	MaxNeighbors        int     `json:"max_neighbors"`
	MaxNeighborDistance float64 `json:"max_neighbor_distance"`
	MaxOffplaneDistance float64 `json:"max_offplane_distance"`
	MaxNormalAngle      float64 `json:"max_normal_angle"`
	MinArea             float64 `json:"min_area"`
	MinDensity          float64 `json:"min_density"`
	MinPoints           float64 `json:"min_points"`
	GridSpacing         float64 `json:"grid_spacing"`
	AccuracyFactor      float64 `json:"accuracy_factor"`
	SupportAccuracy     float64 `json:"support_accuracy"`
	MinComponentSize    int     `json:"min_component_size"`
	Seed                int64   `json:"seed"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		MaxNeighbors:        16,
		MaxNeighborDistance: 0.5,
		MaxOffplaneDistance: 0.5,
		MaxNormalAngle:      0.5,
		MinArea:             1,
		MinDensity:          10,
		MinPoints:           100,
		GridSpacing:         0.25,
		AccuracyFactor:      1,
		SupportAccuracy:     0.1,
		MinComponentSize:    1,
	}
}

// NewConfigFromAttributes decodes attrs over the default settings and validates the result.
func NewConfigFromAttributes(attrs map[string]interface{}) (Config, error) {
	conf := DefaultConfig()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return Config{}, err
	}
	if err := decoder.Decode(attrs); err != nil {
		return Config{}, errors.Wrap(err, "cannot decode segmentation config")
	}
	if err := conf.Validate("segmentation"); err != nil {
		return Config{}, err
	}
	return conf, nil
}

// Validate ensures all parts of the config are valid.
func (conf *Config) Validate(path string) error {
	if conf.MaxNeighbors == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "max_neighbors")
	}
	if conf.MaxNeighbors < 0 {
		return utils.NewConfigValidationError(path, errors.New("max_neighbors cannot be less than 0"))
	}
	if conf.MaxNeighborDistance <= 0 {
		return utils.NewConfigValidationError(path, errors.New("max_neighbor_distance must be greater than 0"))
	}
	if conf.MaxOffplaneDistance <= 0 {
		return utils.NewConfigValidationError(path, errors.New("max_offplane_distance must be greater than 0"))
	}
	if conf.MaxNormalAngle <= 0 || conf.MaxNormalAngle > math.Pi/2 {
		return utils.NewConfigValidationError(path, errors.New("max_normal_angle must be in radians, between 0 and pi/2"))
	}
	if conf.MinArea < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_area cannot be less than 0"))
	}
	if conf.MinDensity < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_density cannot be less than 0"))
	}
	if conf.MinPoints < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_points cannot be less than 0"))
	}
	if conf.GridSpacing == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "grid_spacing")
	}
	if conf.GridSpacing < 0 {
		return utils.NewConfigValidationError(path, errors.New("grid_spacing cannot be less than 0"))
	}
	if conf.AccuracyFactor <= 0 {
		return utils.NewConfigValidationError(path, errors.New("accuracy_factor must be greater than 0"))
	}
	if conf.SupportAccuracy <= 0 {
		return utils.NewConfigValidationError(path, errors.New("support_accuracy must be greater than 0"))
	}
	if conf.MinComponentSize < 0 {
		return utils.NewConfigValidationError(path, errors.New("min_component_size cannot be less than 0"))
	}
	return nil
}
