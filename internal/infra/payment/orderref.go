package payment

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// OrderRefResolver reads and writes merchant order ids of the form
// PREFIX-{PLAN}-{UNIX_MS}-{RANDOM6}.
type OrderRefResolver struct {
	prefix   string
	fallback string
	re       *regexp.Regexp
}

func NewOrderRefResolver(prefix, fallbackPlan string) *OrderRefResolver {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	return &OrderRefResolver{
		prefix:   prefix,
		fallback: strings.ToLower(fallbackPlan),
		re:       regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(prefix) + `-([A-Z]+)-`),
	}
}

// ResolvePlan extracts the plan slug. Malformed ids resolve to the fallback
// plan with ok=false; callers must not bill from a fallback.
func (r *OrderRefResolver) ResolvePlan(merchantOrderID string) (plan string, ok bool) {
	m := r.re.FindStringSubmatch(strings.TrimSpace(merchantOrderID))
	if m == nil {
		return r.fallback, false
	}
	return strings.ToLower(m[1]), true
}

// NewMerchantOrderID generates the checkout reference for plan.
func (r *OrderRefResolver) NewMerchantOrderID(plan string, now time.Time) string {
	id := ulid.Make().String()
	return fmt.Sprintf("%s-%s-%d-%s", r.prefix, strings.ToUpper(plan), now.UnixMilli(), id[len(id)-6:])
}
