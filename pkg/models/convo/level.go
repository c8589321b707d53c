package convo

// Level proficiency tier, selects prompt wording
type Level string

// levels
const (
	LevelEiken3    Level = "eiken3"
	LevelEikenPre2 Level = "eiken-pre2"
	LevelEiken2    Level = "eiken2"

	DefaultLevel = LevelEiken3
)

var levelLabels = map[Level]string{
	LevelEiken3:    "Eiken Grade 3",
	LevelEikenPre2: "Eiken Grade Pre-2",
	LevelEiken2:    "Eiken Grade 2",
}

// Levels all tiers from easy to hard
func Levels() []Level {
	return []Level{LevelEiken3, LevelEikenPre2, LevelEiken2}
}

// ParseLevel returns the default tier for anything unrecognized
func ParseLevel(s string) Level {
	lv := Level(s)
	if _, ok := levelLabels[lv]; ok {
		return lv
	}
	return DefaultLevel
}

// Label human name used in the prompt
func (lv Level) Label() string {
	if s, ok := levelLabels[lv]; ok {
		return s
	}
	return levelLabels[DefaultLevel]
}

func (lv Level) String() string {
	return string(lv)
}

// LevelOption for level selectors
type LevelOption struct {
	Value Level  `json:"value"`
	Label string `json:"label"`
}

func LevelOptions() []LevelOption {
	out := make([]LevelOption, 0, len(levelLabels))
	for _, lv := range Levels() {
		out = append(out, LevelOption{Value: lv, Label: lv.Label()})
	}
	return out
}
