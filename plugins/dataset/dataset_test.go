package dataset

import (
	"context"
	"errors"
	"path"
	"testing"

	"pctasks/app/blob"
	"pctasks/app/objects"
	"pctasks/app/store"
	"pctasks/app/store/storetest"
	"pctasks/plugins/plugin"

	"github.com/stretchr/testify/assert"
)

type fakeCollection struct{}

func (fakeCollection) CreateItem(ctx context.Context, assetURI string, storage blob.Store) ([]objects.Item, *objects.WaitInfo, error) {
	switch assetURI {
	case "broken.tif":
		return nil, nil, errors.New("corrupt header")
	case "pending.tif":
		return nil, &objects.WaitInfo{Message: "not yet"}, nil
	}
	return []objects.Item{{ID: path.Base(assetURI)}}, nil, nil
}

func init() {
	plugin.RegisterCollection("test-collection", fakeCollection{})
}

func TestCreateItems(t *testing.T) {
	asserter := assert.New(t)
	ctx := context.Background()
	records := storetest.New(t)
	tc := &plugin.TaskContext{RunID: "r1", JobID: "j", PartitionID: "0", TaskID: "t", Records: records}

	result := GetEndpoints()[CreateItemsTask].Run(ctx, map[string]interface{}{
		"collection": "test-collection",
		"asset_uris": []interface{}{"a.tif", "broken.tif"},
	}, tc)
	asserter.Equal(objects.TaskResultCompleted, result.Status)

	item, err := records.Items.Get(ctx, objects.StacID("test-collection", "a.tif"), "test-collection:a.tif:None:StacItem")
	if asserter.NoError(err) {
		asserter.Equal("r1", item.RunID)
	}

	errs, err := records.CreateItemErrors.QueryAcrossPartitions(ctx, store.Filter{})
	if asserter.NoError(err) && asserter.Len(errs, 1) {
		asserter.Equal("broken.tif", errs[0].AssetURI)
		asserter.Equal("r1", errs[0].RunID)
	}
}

func TestCreateItems_Wait(t *testing.T) {
	result := GetEndpoints()[CreateItemsTask].Run(context.Background(), map[string]interface{}{
		"collection": "test-collection",
		"asset_uri":  "pending.tif",
	}, &plugin.TaskContext{})
	assert.Equal(t, objects.TaskResultWaiting, result.Status)

	result = GetEndpoints()[CreateItemsTask].Run(context.Background(), map[string]interface{}{
		"collection": "nope",
	}, &plugin.TaskContext{})
	assert.Equal(t, objects.TaskResultFailed, result.Status)
}
