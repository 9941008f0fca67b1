// File: internal/policy/router.go
package policy

import "github.com/2021-SE-Lab-Mindstorm-Project/Smart-Warehouse-Cloud/api/schemas"

// Router sends each decision to a specialist trained for the current anomaly
// mask, falling back to the general policy.
type Router struct {
	general     Policy
	specialists map[int]Policy
}

// NewRouter builds a router. specialists is keyed by anomaly mask.
func NewRouter(general Policy, specialists map[int]Policy) *Router {
	if specialists == nil {
		specialists = map[int]Policy{}
	}
	return &Router{general: general, specialists: specialists}
}

// SpecialistMask is the anomaly mask a specialist for conveyor c serves.
func SpecialistMask(c schemas.Conveyor) int { return 1 << int(c) }

func (r *Router) route(mask int) Policy {
	if p, ok := r.specialists[mask]; ok {
		return p
	}
	return r.general
}

func (r *Router) Select(obs Observation, mask []bool) int {
	return r.route(obs.AnomalyMask).Select(obs, mask)
}

// Update trains the policy that made the decision, chosen by the state it saw.
func (r *Router) Update(prev Observation, action int, rewardDelta float64, next Observation) {
	r.route(prev.AnomalyMask).Update(prev, action, rewardDelta, next)
}

// Close closes the general policy and every specialist.
func (r *Router) Close() error {
	ps := []Policy{r.general}
	for _, p := range r.specialists {
		ps = append(ps, p)
	}
	return closeAll(ps...)
}
