package variant

import (
	"context"
	"fmt"

	"github.com/PaesslerAG/gval"
)

// Filter keeps the variants for which expr evaluates to true.
//
// The expression sees the parameters br (bits per second), w, h (pixels),
// fps and id, e.g. "h <= 720 && br >= 500000". An empty expression keeps
// every variant. Order is preserved.
func Filter(variants []Variant, expr string) ([]Variant, error) {
	if expr == "" {
		return variants, nil
	}

	eval, err := gval.Full().NewEvaluable(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter %q: %w", expr, err)
	}

	var kept []Variant
	for _, v := range variants {
		params := map[string]interface{}{
			"br":  float64(v.Bitrate),
			"w":   float64(v.Width),
			"h":   float64(v.Height),
			"fps": v.FrameRate,
			"id":  v.ID,
		}

		ok, err := eval.EvalBool(context.Background(), params)
		if err != nil {
			return nil, fmt.Errorf("evaluate filter %q on variant %s: %w", expr, v.ID, err)
		}
		if ok {
			kept = append(kept, v)
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("filter %q matched no variants", expr)
	}

	return kept, nil
}
