package mono

import (
	"errors"
	"fmt"

	"jobmono/internal/types"
)

// Validate checks the guarantees of a resolve result: every instance is
// closed, keys are unique and the order is the deterministic one.
func (r *Result) Validate() error {
	if r == nil {
		return nil
	}
	var errs []error
	seen := make(map[string]int, len(r.Instances))
	for i, inst := range r.Instances {
		if inst.Type.HasParams() {
			errs = append(errs, fmt.Errorf("instance %d %s: contains generic parameters", i, inst.Name))
		}
		for j, a := range inst.Args {
			if a.HasParams() {
				errs = append(errs, fmt.Errorf("instance %d %s: argument %d is open", i, inst.Name, j))
			}
		}
		key := inst.Entity + "|" + inst.Key()
		if prev, dup := seen[key]; dup {
			errs = append(errs, fmt.Errorf("instance %d %s: duplicates instance %d", i, inst.Name, prev))
		}
		seen[key] = i
		if i > 0 && r.Instances[i-1].Name > inst.Name {
			errs = append(errs, fmt.Errorf("instance %d %s: out of order after %s", i, inst.Name, r.Instances[i-1].Name))
		}
		if len(inst.UseSites) == 0 {
			errs = append(errs, fmt.Errorf("instance %d %s: no use site", i, inst.Name))
		}
	}
	if r.Types != nil && r.Map != nil {
		for _, e := range r.Map.Entries {
			if !argsAreConcrete(r.Types, e.TypeArgs) {
				errs = append(errs, fmt.Errorf("map entry %s: open arguments", r.Types.Format(e.Type)))
			}
		}
	}
	return errors.Join(errs...)
}

func argsAreConcrete(in *types.Interner, args []types.TypeID) bool {
	for _, a := range args {
		if a == types.NoTypeID || in.ContainsParam(a) {
			return false
		}
	}
	return true
}
