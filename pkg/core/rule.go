package core

// TransformSpec names a transform and the options it is instantiated with.
type TransformSpec struct {
	Transform string         `koanf:"transform" json:"transform"`
	Options   map[string]any `koanf:"options" json:"options,omitempty"`
}

// Rule selects a transform chain for every module path it matches.
//
// A path matches when it matches Test, lies under some Include prefix
// (or Include is empty) and lies under no Exclude prefix.
type Rule struct {
	// Test is an RE2 regular expression matched against the slash-separated path.
	Test    string          `koanf:"test" json:"test"`
	Include []string        `koanf:"include" json:"include,omitempty"`
	Exclude []string        `koanf:"exclude" json:"exclude,omitempty"`
	Use     []TransformSpec `koanf:"use" json:"use"`
}
