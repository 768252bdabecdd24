package grant

import (
	"context"
	"reflect"
	"time"
)

// Touch updates entity's updated_at column to the current time, both in the
// database and on entity itself. It is a no-op if the model has no
// updated_at column.
func (m *Model[T]) Touch(ctx context.Context, entity *T) error {
	if entity == nil {
		return ErrNilPointer
	}

	fieldInfo, ok := m.modelInfo.Columns["updated_at"]
	if !ok {
		return nil
	}

	val := reflect.ValueOf(entity).Elem()
	fieldVal := val.FieldByIndex(fieldInfo.Index)
	if fieldVal.CanSet() {
		if err := setFieldValue(fieldVal, time.Now()); err != nil {
			return err
		}
	}

	return m.UpdateColumns(ctx, entity, "updated_at")
}

// TouchAll sets updated_at to the current time on every row matching the
// query's current WHERE conditions, without fetching or modifying any Go
// entity.
func (m *Model[T]) TouchAll(ctx context.Context) error {
	if _, ok := m.modelInfo.Columns["updated_at"]; !ok {
		return nil
	}
	return m.UpdateMany(ctx, map[string]any{"updated_at": time.Now()})
}

// Reload re-fetches entity by its primary key and overwrites entity's
// fields with the database's current values, discarding any unsaved local
// changes.
func (m *Model[T]) Reload(ctx context.Context, entity *T) error {
	if entity == nil {
		return ErrNilPointer
	}

	pkField, ok := m.modelInfo.Columns[m.modelInfo.PrimaryKey]
	if !ok {
		return ErrRecordNotFound
	}

	val := reflect.ValueOf(entity).Elem()
	pkVal := val.FieldByIndex(pkField.Index).Interface()

	fresh, err := m.Clone().Find(ctx, pkVal)
	if err != nil {
		return err
	}

	val.Set(reflect.ValueOf(fresh).Elem())
	syncOriginals(entity, m.modelInfo)
	return nil
}
