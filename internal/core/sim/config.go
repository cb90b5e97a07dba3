package sim

import "github.com/zeusync/homestead/internal/core/world"

type Config struct {
	// Decay is the loss of each need per simulated second.
	Decay map[string]float64 `yaml:"decay"`
	// NeedThreshold is the level below which an idle actor looks for an
	// object restoring the need.
	NeedThreshold float64 `yaml:"need_threshold"`
	WalkSpeed     float64 `yaml:"walk_speed"`
	ArrivalRadius float64 `yaml:"arrival_radius"`
	// UseDistance applies to objects whose interaction sets no distance.
	UseDistance float64 `yaml:"use_distance"`
	MaxTasks    int     `yaml:"max_tasks"`
	// TalkDistance is how close a speaker stands to its listener.
	TalkDistance float64 `yaml:"talk_distance"`
	// TalkDuration is the length of a conversation in seconds.
	TalkDuration float64 `yaml:"talk_duration"`
	TalkRestore  float64 `yaml:"talk_restore"`
	// Tree is a behavior tree file replacing the built-in one.
	Tree string `yaml:"tree" env:"TREE"`
}

func DefaultConfig() Config {
	return Config{
		Decay: map[string]float64{
			world.NeedHunger:  0.4,
			world.NeedSocial:  0.1,
			world.NeedHygiene: 0.3,
			world.NeedFun:     0.1,
			world.NeedEnergy:  0.2,
			world.NeedBladder: 0.5,
		},
		NeedThreshold: 40,
		WalkSpeed:     1.4,
		ArrivalRadius: 0.15,
		UseDistance:   1.0,
		MaxTasks:      8,
		TalkDistance:  1.0,
		TalkDuration:  6,
		TalkRestore:   20,
	}
}
