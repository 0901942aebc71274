package transcribe

import (
	"fmt"
	"strings"
)

// ModelTier is a speech model size. Larger tiers are more accurate and
// need more memory.
type ModelTier int

const (
	TierTiny ModelTier = iota + 1
	TierBase
	TierSmall
	TierMedium
	TierLarge
	TierLargeV3Turbo
)

// Resources is the estimated memory a tier needs, in GB.
type Resources struct {
	RAMGB  float64 `json:"ram_gb"`
	VRAMGB float64 `json:"vram_gb"`
}

type tierInfo struct {
	name      string
	resources Resources
}

var tiers = map[ModelTier]tierInfo{
	TierTiny:         {"tiny", Resources{RAMGB: 2, VRAMGB: 1}},
	TierBase:         {"base", Resources{RAMGB: 4, VRAMGB: 2}},
	TierSmall:        {"small", Resources{RAMGB: 6, VRAMGB: 3}},
	TierMedium:       {"medium", Resources{RAMGB: 10, VRAMGB: 5}},
	TierLarge:        {"large", Resources{RAMGB: 16, VRAMGB: 8}},
	TierLargeV3Turbo: {"large-v3-turbo", Resources{RAMGB: 20, VRAMGB: 10}},
}

// AllTiers lists the tiers from smallest to largest.
func AllTiers() []ModelTier {
	return []ModelTier{TierTiny, TierBase, TierSmall, TierMedium, TierLarge, TierLargeV3Turbo}
}

func (t ModelTier) String() string {
	if info, ok := tiers[t]; ok {
		return info.name
	}
	return fmt.Sprintf("ModelTier(%d)", int(t))
}

// Valid reports whether t is one of the known tiers.
func (t ModelTier) Valid() bool {
	_, ok := tiers[t]
	return ok
}

// Resources returns the estimated RAM/VRAM for t.
func (t ModelTier) Resources() Resources {
	return tiers[t].resources
}

// ParseModelTier parses a model name such as "small" or "large-v3-turbo".
func ParseModelTier(value string) (ModelTier, error) {
	name := strings.ToLower(strings.TrimSpace(value))
	for _, tier := range AllTiers() {
		if tiers[tier].name == name {
			return tier, nil
		}
	}
	return 0, fmt.Errorf("unknown whisper model %q", value)
}

func (t ModelTier) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown whisper model %d", int(t))
	}
	return []byte(t.String()), nil
}

func (t *ModelTier) UnmarshalText(text []byte) error {
	parsed, err := ParseModelTier(string(text))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
