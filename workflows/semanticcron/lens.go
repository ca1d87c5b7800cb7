package semanticcron

import (
	"time"

	"github.com/websets-labs/orchestrator/projection"
	"github.com/websets-labs/orchestrator/upstream"
)

// ShapedItem is one lens item that passed its lens's shapes, carrying
// projected identity, enrichment values indexed by
// description, and the item's creation timestamp.
type ShapedItem struct {
	ItemID      string
	Name        string
	URL         string
	CreatedAt   time.Time
	Enrichments map[string][]string
}

// LensResult is one lens's contribution to an evaluation: lens
// id, resolved webset id, total items observed, and the items that passed
// that lens's shapes.
type LensResult struct {
	LensID      string
	WebsetID    string
	TotalItems  int
	ShapedItems []ShapedItem
	ShapeIDs    []string
}

// enrichmentDescriptions builds the enrichment id -> natural-language
// description map for a webset.
func enrichmentDescriptions(w upstream.Webset) map[string]string {
	out := make(map[string]string, len(w.Enrichments))
	for _, e := range w.Enrichments {
		out[e.ID] = e.Description
	}
	return out
}

// resolveEnrichmentValues re-keys an item's enrichment results from
// enrichment id to natural-language description, the key space the shape
// evaluator consumes.
func resolveEnrichmentValues(it upstream.Item, descByID map[string]string) map[string][]string {
	out := make(map[string][]string, len(it.Enrichments))
	for _, e := range it.Enrichments {
		desc := e.Description
		if desc == "" {
			if d, ok := descByID[e.EnrichmentID]; ok {
				desc = d
			}
		}
		if desc == "" {
			continue
		}
		out[desc] = e.Result
	}
	return out
}

// lensShapes returns the shapes bound to lensID, in config order.
func lensShapes(cfg Config, lensID string) []Shape {
	var out []Shape
	for _, s := range cfg.Shapes {
		if s.LensID == lensID {
			out = append(out, s)
		}
	}
	return out
}

// isShaped evaluates the permissive pre-filter and every shape bound to
// this lens for one item: an item passes the pre-filter if it
// has no evaluations, or at least one evaluation is satisfied == "yes". It
// is then shaped for the lens if any of the lens's shapes pass (or if the
// lens declares none).
func isShaped(it upstream.Item, shapes []Shape, values map[string][]string) (bool, error) {
	if !projection.HasSatisfiedEvaluation(it) {
		return false, nil
	}
	if len(shapes) == 0 {
		return true, nil
	}
	for _, s := range shapes {
		ok, err := evalShape(s, values)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// buildLensResult evaluates every collected item against lensID's shapes
// and assembles the LensResult.
func buildLensResult(cfg Config, lensID, websetID string, items []upstream.Item, descByID map[string]string) (LensResult, error) {
	shapes := lensShapes(cfg, lensID)
	shapeIDs := make([]string, len(shapes))
	for i, s := range shapes {
		shapeIDs[i] = s.ID
	}

	res := LensResult{LensID: lensID, WebsetID: websetID, TotalItems: len(items), ShapeIDs: shapeIDs}
	for _, it := range items {
		values := resolveEnrichmentValues(it, descByID)
		shaped, err := isShaped(it, shapes, values)
		if err != nil {
			return LensResult{}, err
		}
		if !shaped {
			continue
		}
		res.ShapedItems = append(res.ShapedItems, ShapedItem{
			ItemID:      it.ID,
			Name:        projection.EntityName(it),
			URL:         it.URL,
			CreatedAt:   it.CreatedAt,
			Enrichments: values,
		})
	}
	return res, nil
}
