/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package evidence

import (
	"github.com/decisiongate/decisiongate/internal/dgerr"
	"github.com/decisiongate/decisiongate/internal/spec"
)

// EffectiveMinLane computes the strictest (highest-rank) TrustRequirement
// across global -> scenario -> gate -> condition (§4.3.3), where any nil
// level is simply skipped. An absent requirement at every level defaults
// to Asserted, the least strict lane.
func EffectiveMinLane(global, scenario, gate, condition *spec.TrustRequirement) spec.TrustLane {
	lane := spec.Asserted
	for _, req := range []*spec.TrustRequirement{global, scenario, gate, condition} {
		if req != nil && req.MinLane.Rank() > lane.Rank() {
			lane = req.MinLane
		}
	}
	return lane
}

// ResolveTrust applies §4.3.3 steps 2-3: a result whose actual lane ranks
// below minLane is downgraded to Unknown with LaneInsufficient, regardless
// of what the provider returned. Callers still apply the comparator to the
// returned Result when ok is true.
func ResolveTrust(result Result, minLane spec.TrustLane) (res Result, ok bool) {
	if result.Error != nil {
		return result, false
	}
	if result.Lane.Rank() < minLane.Rank() {
		result.Error = dgerr.NewStructured(dgerr.LaneInsufficient, "evidence lane "+string(result.Lane)+" below required "+string(minLane))
		return result, false
	}
	return result, true
}
