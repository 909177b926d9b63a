package credential

import (
	"fmt"
	"math/rand/v2"
)

// PortraitCount is the number of placeholder portraits per gender.
const PortraitCount = 100

// DefaultDisplayAsset returns a placeholder portrait URL for a record uploaded
// without a photo. The portrait is picked at random on every call, so the
// value is not reproducible and must only be checked for presence.
func DefaultDisplayAsset(gender string) string {
	dir := "women"
	if gender == "male" {
		dir = "men"
	}
	return fmt.Sprintf("https://randomuser.me/api/portraits/%s/%d.jpg", dir, rand.IntN(PortraitCount))
}
