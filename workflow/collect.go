package workflow

import (
	"context"

	"github.com/websets-labs/orchestrator/upstream"
	"github.com/websets-labs/orchestrator/workflowerr"
)

// CollectItems iterates the upstream's streaming item listing, capping at
// 2 * count to absorb over-recall. count <= 0 defaults to 10
// (cap 20).
func CollectItems(ctx context.Context, rc *RunContext, websetID string, count int) ([]upstream.Item, error) {
	if count <= 0 {
		count = 10
	}
	limit := 2 * count

	items := make([]upstream.Item, 0, limit)
	err := rc.Client.ListItems(ctx, websetID, func(it upstream.Item) (bool, error) {
		items = append(items, it)
		return len(items) < limit, nil
	})
	if err != nil {
		return items, workflowerr.Wrap(classifyUpstreamErr(err), "collect.items", err)
	}
	return items, nil
}
