package dataset

import (
	"context"
	"fmt"

	"pctasks/app/objects"
	"pctasks/plugins/plugin"

	"github.com/google/uuid"
)

const CreateItemsTask = "pctasks.dataset:create_items"

type CreateItemsInput struct {
	Collection string   `json:"collection"`
	AssetURIs  []string `json:"asset_uris"`
	AssetURI   string   `json:"asset_uri"`
}

func (in *CreateItemsInput) assets() []string {
	if in.AssetURI != "" {
		return append([]string{in.AssetURI}, in.AssetURIs...)
	}
	return in.AssetURIs
}

// CreateItems runs a registered collection over assets, stores the created
// items as item records and failures as create-item error records.
func CreateItems(ctx context.Context, input *CreateItemsInput, tc *plugin.TaskContext) objects.TaskResult {
	collection, ok := plugin.LookupCollection(input.Collection)
	if !ok {
		return objects.FailedResult(fmt.Sprintf("unknown collection %s", input.Collection))
	}

	var created []interface{}
	var failures []string
	for _, asset := range input.assets() {
		items, wait, err := collection.CreateItem(ctx, asset, tc.Blobs)
		if wait != nil {
			tc.Log().Infof("collection %s asked to wait on %s: %s", input.Collection, asset, wait.Message)
			return objects.TaskResult{Status: objects.TaskResultWaiting, Wait: wait}
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %s", asset, err))
			if tc.Records != nil {
				record := &objects.CreateItemErrorRecord{
					TaskErrorSource: tc.ErrorSource(),
					ID:              uuid.NewString(),
					Collection:      input.Collection,
					AssetURI:        asset,
					Error:           err.Error(),
				}
				if err := tc.Records.CreateItemErrors.Put(ctx, record); err != nil {
					return objects.FailedResult(fmt.Sprintf("record create item error: %s", err))
				}
			}
			continue
		}
		for i := range items {
			item := &items[i]
			if item.Collection == "" {
				item.Collection = input.Collection
			}
			if tc.Records != nil {
				record := objects.NewItemRecord(item, objects.ItemKindStacItem, tc.RunID)
				if err := tc.Records.Items.Put(ctx, record); err != nil {
					return objects.FailedResult(fmt.Sprintf("record item %s: %s", item.ID, err))
				}
			}
			created = append(created, objects.ItemRecordID(item.Collection, item.ID, item.Version, objects.ItemKindStacItem))
		}
	}

	output := map[string]interface{}{
		"items":  created,
		"errors": failures,
	}
	if len(created) == 0 && len(failures) > 0 {
		return objects.TaskResult{Status: objects.TaskResultFailed, Output: output, Errors: failures}
	}
	return objects.CompletedResult(output)
}

func GetEndpoints() map[string]plugin.Task {
	return map[string]plugin.Task{
		CreateItemsTask: plugin.Typed(CreateItems),
	}
}
