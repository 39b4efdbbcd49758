package objects

import (
	"fmt"
	"time"
)

type ItemKind string

const (
	ItemKindStacItem    ItemKind = "StacItem"
	ItemKindItemUpdated ItemKind = "ItemUpdated"
)

// Item is a catalog document produced by a collection.
type Item struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Version    string                 `json:"version,omitempty"`
	Properties map[string]interface{} `json:"properties,omitempty"`
	Assets     map[string]interface{} `json:"assets,omitempty"`
}

func ItemRecordID(collection, item, version string, kind ItemKind) string {
	if version == "" {
		version = "None"
	}
	return fmt.Sprintf("%s:%s:%s:%s", collection, item, version, kind)
}

func StacID(collection, item string) string {
	return collection + "/" + item
}

type ItemRecord struct {
	Timestamps
	Collection string   `json:"collection"`
	ItemID     string   `json:"item_id"`
	Version    string   `json:"version,omitempty"`
	Kind       ItemKind `json:"kind"`
	Item       *Item    `json:"item,omitempty"`
	RunID      string   `json:"run_id,omitempty"`
}

func NewItemRecord(item *Item, kind ItemKind, runID string) *ItemRecord {
	return &ItemRecord{
		Collection: item.Collection,
		ItemID:     item.ID,
		Version:    item.Version,
		Kind:       kind,
		Item:       item,
		RunID:      runID,
	}
}

func (r *ItemRecord) RecordID() string {
	return ItemRecordID(r.Collection, r.ItemID, r.Version, r.Kind)
}
func (r *ItemRecord) PartitionKey() string { return StacID(r.Collection, r.ItemID) }
func (r *ItemRecord) RecordType() string   { return RecordTypeItem }
func (r *ItemRecord) RecordStatus() string { return string(r.Kind) }

// TaskErrorSource identifies the task that produced an error record.
type TaskErrorSource struct {
	RunID       string `json:"run_id"`
	JobID       string `json:"job_id"`
	PartitionID string `json:"partition_id"`
	TaskID      string `json:"task_id"`
}

type ProcessItemErrorRecord struct {
	Timestamps
	TaskErrorSource
	ID         string `json:"id"`
	Collection string `json:"collection"`
	Input      string `json:"input"`
	Error      string `json:"error"`
}

func (r *ProcessItemErrorRecord) RecordID() string     { return r.ID }
func (r *ProcessItemErrorRecord) PartitionKey() string { return r.ID }
func (r *ProcessItemErrorRecord) RecordType() string   { return RecordTypeProcessItemError }
func (r *ProcessItemErrorRecord) RecordStatus() string { return "" }

type CreateItemErrorRecord struct {
	Timestamps
	TaskErrorSource
	ID         string `json:"id"`
	Collection string `json:"collection"`
	AssetURI   string `json:"asset_uri"`
	Error      string `json:"error"`
}

func (r *CreateItemErrorRecord) RecordID() string     { return r.ID }
func (r *CreateItemErrorRecord) PartitionKey() string { return r.ID }
func (r *CreateItemErrorRecord) RecordType() string   { return RecordTypeCreateItemError }
func (r *CreateItemErrorRecord) RecordStatus() string { return "" }

// CloudEvent is the storage event format carried by EventGrid messages.
type CloudEvent struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Subject     string                 `json:"subject"`
	Source      string                 `json:"source,omitempty"`
	SpecVersion string                 `json:"specversion,omitempty"`
	Time        time.Time              `json:"time"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

type StorageEventRecord struct {
	Timestamps
	Event CloudEvent `json:"event"`
}

func (r *StorageEventRecord) RecordID() string     { return r.Event.ID }
func (r *StorageEventRecord) PartitionKey() string { return r.Event.ID }
func (r *StorageEventRecord) RecordType() string   { return RecordTypeStorageEvent }
func (r *StorageEventRecord) RecordStatus() string { return r.Event.Type }
