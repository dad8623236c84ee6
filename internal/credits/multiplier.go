package credits

import (
	"math"
	"time"

	"github.com/holdgate/holdgate/internal/users"
)

// Holding curve parameters.
const (
	WarmupWindow = 5 * time.Minute
	SaleCooldown = 30 * time.Minute
	RampBaseline = 0.1
	RampPerHour  = 0.04
	HolderCap    = 1.0
	SellerCap    = 0.8
)

// Multiplier evaluates the holding curve for user at now.
//
// Never sold: 0 during warm-up, then min(1.0, 0.1 + 0.04 * hours since first seen).
// Sold at T: 0 until T+30m, then the same ramp capped at 0.8. The ramp always runs
// from first seen, not from the sale.
func Multiplier(user *users.User, now time.Time) float64 {
	if user == nil {
		return 0
	}

	elapsed := now.Sub(user.FirstSeenAt)
	if elapsed < WarmupWindow {
		return 0
	}

	ceiling := HolderCap
	if user.LastSoldAt != nil {
		// A sale timestamp ahead of now counts as inside the cooldown.
		if now.Sub(*user.LastSoldAt) < SaleCooldown {
			return 0
		}
		ceiling = SellerCap
	}

	ramp := RampBaseline + RampPerHour*elapsed.Hours()
	return math.Min(ceiling, ramp)
}
