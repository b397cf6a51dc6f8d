package profile

import "strings"

// Tier is a silicon generation, ordered oldest to newest.
type Tier int

const (
	TierA4 Tier = iota + 1
	TierA5
	TierA5X
	TierA6
	TierA6X
	TierA7
	TierA7X
	TierA8
	TierA8X
	TierA9
	TierA9X
	TierA10
	TierA10X
	TierA11
	TierA12
	TierA12X
	TierA13
	TierA14

	// TierA12Z shares the A12X media block.
	TierA12Z = TierA12X

	// TierLowest is used for identifiers that are not in the table.
	TierLowest = TierA4
)

var tierNames = map[Tier]string{
	TierA4: "A4", TierA5: "A5", TierA5X: "A5X", TierA6: "A6", TierA6X: "A6X",
	TierA7: "A7", TierA7X: "A7X", TierA8: "A8", TierA8X: "A8X", TierA9: "A9",
	TierA9X: "A9X", TierA10: "A10", TierA10X: "A10X", TierA11: "A11", TierA12: "A12",
	TierA12X: "A12X", TierA13: "A13", TierA14: "A14",
}

func (t Tier) String() string {
	if name, ok := tierNames[t]; ok {
		return name
	}
	return "unknown"
}

// hardwareTiers maps hardware model identifiers to their silicon tier.
var hardwareTiers = map[string]Tier{
	// Desktop engines pick a capability level explicitly.
	"generic-h264":        TierLowest,
	"generic-hevc":        TierA10,
	"generic-dolbyvision": TierA10X,
	"generic-atmos":       TierA12,

	"iPod5,1": TierA5,
	"iPod7,1": TierA8,
	"iPod9,1": TierA10,

	"iPhone3,1": TierA4, "iPhone3,2": TierA4, "iPhone3,3": TierA4,
	"iPhone4,1": TierA5,
	"iPhone5,1": TierA6, "iPhone5,2": TierA6, "iPhone5,3": TierA6, "iPhone5,4": TierA6,
	"iPhone6,1": TierA7, "iPhone6,2": TierA7,
	"iPhone7,1": TierA8, "iPhone7,2": TierA8,
	"iPhone8,1": TierA9, "iPhone8,2": TierA9, "iPhone8,4": TierA9,
	"iPhone9,1": TierA10, "iPhone9,2": TierA10, "iPhone9,3": TierA10, "iPhone9,4": TierA10,
	"iPhone10,1": TierA11, "iPhone10,2": TierA11, "iPhone10,3": TierA11,
	"iPhone10,4": TierA11, "iPhone10,5": TierA11, "iPhone10,6": TierA11,
	"iPhone11,2": TierA12, "iPhone11,6": TierA12, "iPhone11,8": TierA12,
	"iPhone12,1": TierA13, "iPhone12,3": TierA13, "iPhone12,5": TierA13, "iPhone12,8": TierA13,
	"iPhone13,1": TierA14, "iPhone13,2": TierA14, "iPhone13,3": TierA14, "iPhone13,4": TierA14,

	"iPad2,1": TierA5, "iPad2,2": TierA5, "iPad2,3": TierA5, "iPad2,4": TierA5,
	"iPad2,5": TierA5, "iPad2,6": TierA5, "iPad2,7": TierA5,
	"iPad3,1": TierA5X, "iPad3,2": TierA5X, "iPad3,3": TierA5X,
	"iPad3,4": TierA6X, "iPad3,5": TierA6X, "iPad3,6": TierA6X,
	"iPad4,1": TierA7, "iPad4,2": TierA7, "iPad4,3": TierA7,
	"iPad4,4": TierA7, "iPad4,5": TierA7, "iPad4,6": TierA7,
	"iPad4,7": TierA7, "iPad4,8": TierA7, "iPad4,9": TierA7,
	"iPad5,1": TierA8, "iPad5,2": TierA8,
	"iPad5,3": TierA8X, "iPad5,4": TierA8X,
	"iPad6,3": TierA9X, "iPad6,4": TierA9X, "iPad6,7": TierA9X, "iPad6,8": TierA9X,
	"iPad6,11": TierA9, "iPad6,12": TierA9,
	"iPad7,1": TierA10X, "iPad7,2": TierA10X, "iPad7,3": TierA10X, "iPad7,4": TierA10X,
	"iPad7,5": TierA10, "iPad7,6": TierA10, "iPad7,11": TierA10, "iPad7,12": TierA10,
	"iPad8,1": TierA12X, "iPad8,2": TierA12X, "iPad8,3": TierA12X, "iPad8,4": TierA12X,
	"iPad8,5": TierA12X, "iPad8,6": TierA12X, "iPad8,7": TierA12X, "iPad8,8": TierA12X,
	"iPad8,9": TierA12Z, "iPad8,10": TierA12Z, "iPad8,11": TierA12Z, "iPad8,12": TierA12Z,
	"iPad11,1": TierA12, "iPad11,2": TierA12, "iPad11,3": TierA12, "iPad11,4": TierA12,
	"iPad11,6": TierA12, "iPad11,7": TierA12,
	"iPad13,1": TierA14, "iPad13,2": TierA14,

	"AppleTV5,3":        TierA8,
	"AppleTV6,2":        TierA10X,
	"AudioAccessory1,1": TierA8,
}

// LookupTier maps a hardware identifier to its tier. The second return value is
// false when the identifier is unknown and the lowest tier was substituted.
func LookupTier(hardwareID string) (Tier, bool) {
	id := strings.TrimSpace(hardwareID)
	if tier, ok := hardwareTiers[id]; ok {
		return tier, true
	}
	// Desktop identifiers are case-insensitive.
	if tier, ok := hardwareTiers[strings.ToLower(id)]; ok {
		return tier, true
	}
	return TierLowest, false
}
