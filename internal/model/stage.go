package model

// StageAnalysis classifies where a symbol sits in its long-term lifecycle
// (accumulation, advance, distribution, decline) and scores the transition
// toward the next phase: 1 -> 2 breakout quality for basing stocks, 2 -> 3
// topping risk for advancing ones.
type StageAnalysis struct {
	Stage     int    `json:"stage"`
	StageName string `json:"stage_name"`
	Date      string `json:"date"`
	Score     int    `json:"score"`
	Judgment  string `json:"judgment"`
	Action    string `json:"action"`
	Target    string `json:"target"`
}
