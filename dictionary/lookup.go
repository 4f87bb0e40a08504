package dictionary

import (
	"fmt"
	"time"

	"github.com/status-im/dict-cache/schema"
	"github.com/status-im/dict-cache/storage"
)

// GetColumns implements Interface. The read path partitions the extracted
// keys into fresh, usable-expired and missing, serves what it can from
// storage and resolves the rest through the update queue.
func (d *Dictionary[K]) GetColumns(attributeNames []string, keyColumns []schema.Column, defaultColumns []schema.Column) ([]schema.Column, error) {
	keys, err := d.extractor.Extract(keyColumns, nil)
	if err != nil {
		return nil, err
	}
	request, err := schema.NewFetchRequest(d.sch, attributeNames)
	if err != nil {
		return nil, err
	}
	if len(defaultColumns) != 0 && len(defaultColumns) != len(attributeNames) {
		return nil, fmt.Errorf("expected %d default columns, got %d", len(attributeNames), len(defaultColumns))
	}

	result := d.fetchFromStorage(keys, request)

	freshSize := len(result.FreshIndex)
	expiredSize := len(result.ExpiredIndex)
	missingSize := len(keys) - freshSize - expiredSize
	d.metrics.RecordLookup(freshSize, expiredSize, missingSize)
	d.queries.Add(uint64(len(keys)))
	d.hits.Add(uint64(freshSize))

	providers := d.defaultProviders(request, defaultColumns)

	if missingSize == 0 && expiredSize == 0 {
		// All keys were found fresh in storage.
		if result.InKeyOrder && !result.HasDefaultRows() {
			return request.FilterRequested(result.Columns), nil
		}
		return request.FilterRequested(d.aggregateStorageRows(keys, request, &result, providers)), nil
	}

	unit := d.makeUpdateUnit(keys, keyColumns, &result, request)

	if missingSize == 0 && d.allowReadExpired {
		// Serve stale rows now; the unit refreshes the cache in the
		// background and the caller does not wait for it.
		if err := d.queue.TryPush(unit); err != nil {
			return nil, err
		}
		if result.InKeyOrder && !result.HasDefaultRows() {
			return request.FilterRequested(result.Columns), nil
		}
		return request.FilterRequested(d.aggregateStorageRows(keys, request, &result, providers)), nil
	}

	if err := d.queue.TryPush(unit); err != nil {
		return nil, err
	}
	if err := d.queue.WaitForFinish(unit); err != nil {
		return nil, err
	}

	aggregated := d.aggregateColumns(keys, request, &result, unit, providers)
	return request.FilterRequested(aggregated), nil
}

// GetColumn implements Interface
func (d *Dictionary[K]) GetColumn(attributeName string, keyColumns []schema.Column, defaultColumn schema.Column) (schema.Column, error) {
	var defaults []schema.Column
	if defaultColumn != nil {
		defaults = []schema.Column{defaultColumn}
	}
	columns, err := d.GetColumns([]string{attributeName}, keyColumns, defaults)
	if err != nil {
		return nil, err
	}
	return columns[0], nil
}

// HasKeys implements Interface. It runs the same partitioning as GetColumns
// with an empty fetch request; the slow path marks keys found either fresh in
// storage or among the update's results.
func (d *Dictionary[K]) HasKeys(keyColumns []schema.Column) ([]bool, error) {
	keys, err := d.extractor.Extract(keyColumns, nil)
	if err != nil {
		return nil, err
	}
	request, err := schema.NewFetchRequest(d.sch, nil)
	if err != nil {
		return nil, err
	}

	result := d.fetchFromStorage(keys, request)

	freshSize := len(result.FreshIndex)
	expiredSize := len(result.ExpiredIndex)
	missingSize := len(keys) - freshSize - expiredSize
	d.metrics.RecordLookup(freshSize, expiredSize, missingSize)
	d.queries.Add(uint64(len(keys)))
	d.hits.Add(uint64(freshSize))

	if missingSize == 0 && expiredSize == 0 {
		return allTrue(len(keys)), nil
	}

	unit := d.makeUpdateUnit(keys, keyColumns, &result, request)

	if missingSize == 0 && d.allowReadExpired {
		if err := d.queue.TryPush(unit); err != nil {
			return nil, err
		}
		return allTrue(len(keys)), nil
	}

	if err := d.queue.TryPush(unit); err != nil {
		return nil, err
	}
	if err := d.queue.WaitForFinish(unit); err != nil {
		return nil, err
	}

	out := make([]bool, len(keys))
	for i, key := range keys {
		if row, ok := result.FreshIndex[key]; ok && !result.DefaultMask[row] {
			out[i] = true
			continue
		}
		if _, ok := unit.FoundKeys[key]; ok {
			out[i] = true
		}
	}
	return out, nil
}

// fetchFromStorage runs the storage lookup under the write lock. Fetch needs
// the write lock because storage may record access state.
func (d *Dictionary[K]) fetchFromStorage(keys []K, request *schema.FetchRequest) storage.FetchResult[K] {
	lockStart := time.Now()
	d.rw.Lock()
	d.metrics.RecordLockWait("write", time.Since(lockStart))
	defer d.rw.Unlock()
	return d.store.Fetch(keys, request, time.Now())
}

// makeUpdateUnit builds the unit resolving the keys storage flagged as
// missing or expired
func (d *Dictionary[K]) makeUpdateUnit(keys []K, keyColumns []schema.Column, result *storage.FetchResult[K], request *schema.FetchRequest) *UpdateUnit[K] {
	updateKeys := make([]K, len(result.NeedUpdate))
	for i, row := range result.NeedUpdate {
		updateKeys[i] = keys[row]
	}
	unit := newUpdateUnit(updateKeys, request)
	if !d.simpleKey() {
		unit.KeyColumns = keyColumns
		unit.KeyRows = append([]int(nil), result.NeedUpdate...)
	}
	return unit
}

// defaultProviders builds one provider per schema attribute: the caller's
// default column where one was supplied, the attribute null value otherwise
func (d *Dictionary[K]) defaultProviders(request *schema.FetchRequest, defaultColumns []schema.Column) []schema.DefaultValueProvider {
	providers := make([]schema.DefaultValueProvider, len(d.sch.Attributes))
	for i := range providers {
		providers[i] = schema.NewDefaultValueProvider(d.sch.Attributes[i].Null(), nil)
	}
	for pos, attrIdx := range request.RequestedIndexes() {
		var column schema.Column
		if pos < len(defaultColumns) {
			column = defaultColumns[pos]
		}
		providers[attrIdx] = schema.NewDefaultValueProvider(d.sch.Attributes[attrIdx].Null(), column)
	}
	return providers
}

// aggregateStorageRows reorders fetched storage rows into input-key order.
// Fresh rows win over expired ones; negative entries take the caller default.
func (d *Dictionary[K]) aggregateStorageRows(keys []K, request *schema.FetchRequest, result *storage.FetchResult[K], providers []schema.DefaultValueProvider) []schema.Column {
	aggregated := request.MakeResultColumns()
	for attrIdx := range aggregated {
		if !request.ShouldFill(attrIdx) {
			continue
		}
		fetched := result.Columns[attrIdx]
		for keyRow, key := range keys {
			row, ok := result.FreshIndex[key]
			if !ok {
				row, ok = result.ExpiredIndex[key]
			}
			if ok && !result.DefaultMask[row] {
				aggregated[attrIdx] = append(aggregated[attrIdx], fetched[row])
				continue
			}
			aggregated[attrIdx] = append(aggregated[attrIdx], providers[attrIdx].Value(keyRow))
		}
	}
	return aggregated
}

// aggregateColumns merges storage rows for fresh keys, update rows for
// freshly fetched keys and caller defaults for keys still absent. When a key
// appears in both indexes the storage row wins: a concurrent call may have
// refreshed it after this unit was built.
func (d *Dictionary[K]) aggregateColumns(keys []K, request *schema.FetchRequest, result *storage.FetchResult[K], unit *UpdateUnit[K], providers []schema.DefaultValueProvider) []schema.Column {
	aggregated := request.MakeResultColumns()
	for attrIdx := range aggregated {
		if !request.ShouldFill(attrIdx) {
			continue
		}
		fromStorage := result.Columns[attrIdx]
		fromUpdate := unit.FetchedColumns[attrIdx]
		for keyRow, key := range keys {
			if row, ok := result.FreshIndex[key]; ok && !result.DefaultMask[row] {
				aggregated[attrIdx] = append(aggregated[attrIdx], fromStorage[row])
				continue
			}
			if row, ok := unit.FoundKeys[key]; ok {
				aggregated[attrIdx] = append(aggregated[attrIdx], fromUpdate[row])
				continue
			}
			aggregated[attrIdx] = append(aggregated[attrIdx], providers[attrIdx].Value(keyRow))
		}
	}
	return aggregated
}

func (d *Dictionary[K]) simpleKey() bool {
	var zero K
	_, ok := any(zero).(uint64)
	return ok
}

func allTrue(n int) []bool {
	out := make([]bool, n)
	for i := range out {
		out[i] = true
	}
	return out
}
