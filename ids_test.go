package grant

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/mattn/go-sqlite3"
)

func TestNewULID_FormatAndUniqueness(t *testing.T) {
	a := NewULID()
	b := NewULID()

	assert.Len(t, a, 26)
	assert.NotEqual(t, a, b)
}

func TestGenerateLogicalID(t *testing.T) {
	id, err := generateLogicalID("uuid")
	require.NoError(t, err)
	assert.Len(t, id.(string), 36)

	id, err = generateLogicalID("ulid")
	require.NoError(t, err)
	assert.Len(t, id.(string), 26)

	id, err = generateLogicalID("objectid")
	require.NoError(t, err)
	assert.Len(t, id.(string), 24)

	_, err = generateLogicalID("not-a-real-strategy")
	assert.Error(t, err)
}

type LogicalIDItem struct {
	ID   string `grant:"primary;logical_type:ulid"`
	Name string
}

func (LogicalIDItem) TableName() string { return "logical_id_items" }

func TestCreate_GeneratesLogicalTypeID(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE logical_id_items (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	item := &LogicalIDItem{Name: "widget"}
	err = New[LogicalIDItem]().SetDB(db).Create(context.Background(), item)
	require.NoError(t, err)

	assert.Len(t, item.ID, 26)

	found, err := New[LogicalIDItem]().SetDB(db).Find(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, item.ID, found.ID)
}

func TestCreate_PreservesCallerAssignedLogicalTypeID(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	_, err = db.Exec(`CREATE TABLE logical_id_items (id TEXT PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)

	item := &LogicalIDItem{ID: "caller-chosen-id", Name: "widget"}
	err = New[LogicalIDItem]().SetDB(db).Create(context.Background(), item)
	require.NoError(t, err)

	assert.Equal(t, "caller-chosen-id", item.ID)
}
