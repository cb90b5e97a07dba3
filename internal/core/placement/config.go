package placement

type Config struct {
	// SnapDistance is how far from a wall a wall-mounted object may be
	// requested and still snap onto it.
	SnapDistance float64 `yaml:"snap_distance"`
	// AttachGap separates attached objects from the wall surface.
	AttachGap float64 `yaml:"attach_gap"`
	// AnchorRadius is the radius around an actor whose cells count as the
	// actor's position for connectivity checks.
	AnchorRadius      float64 `yaml:"anchor_radius"`
	MinWallLength     float64 `yaml:"min_wall_length"`
	WallPricePerMeter int64   `yaml:"wall_price_per_meter"`
	// RefundRatio is the share of the price returned when a player removes
	// an object or wall.
	RefundRatio float64 `yaml:"refund_ratio"`
	// LotPricePerSquareMeter is what a player pays to buy an unowned lot.
	LotPricePerSquareMeter int64   `yaml:"lot_price_per_square_meter"`
	RoadHalfWidth          float64 `yaml:"road_half_width"`
	MinRoadLength          float64 `yaml:"min_road_length"`
}

func DefaultConfig() Config {
	return Config{
		SnapDistance:      1.0,
		AttachGap:         0.03,
		AnchorRadius:      0.5,
		MinWallLength:     0.5,
		WallPricePerMeter: 10,
		RefundRatio:       1,

		LotPricePerSquareMeter: 2,
		RoadHalfWidth:          1.5,
		MinRoadLength:          1,
	}
}
