// Package hook wires change-data capture into the row store: a gorm plugin
// that assigns generated ids, bumps row versions on real updates and appends
// a change-log entry after every committed insert, update and delete, inside
// the same transaction as the mutation itself.
package hook

import (
	"reflect"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/systemizing-solutions/shuttle-bridge/internal/ident"
	"github.com/systemizing-solutions/shuttle-bridge/internal/models"
	"github.com/systemizing-solutions/shuttle-bridge/internal/schema"
	"github.com/systemizing-solutions/shuttle-bridge/internal/tenant"
)

// bookkeepingColumns are maintained by the plugin and the sync engine; an
// update touching only these is not a real mutation and emits no entry.
var bookkeepingColumns = map[string]bool{
	"id":         true,
	"version":    true,
	"updated_at": true,
	"deleted_at": true,
}

// Plugin registers the change hooks on a gorm DB. Only values implementing
// schema.Row participate; writes to the change log, sync state and node
// registry tables pass through untouched.
type Plugin struct {
	IDs    *ident.Generator
	Logger *zap.Logger
}

func (p *Plugin) Name() string { return "shuttlebridge:changelog" }

func (p *Plugin) Initialize(db *gorm.DB) error {
	create := db.Callback().Create()
	if err := create.Before("gorm:create").Register("shuttlebridge:assign_id", p.beforeCreate); err != nil {
		return err
	}
	if err := create.After("gorm:create").Register("shuttlebridge:log_insert", p.afterCreate); err != nil {
		return err
	}
	update := db.Callback().Update()
	if err := update.Before("gorm:update").Register("shuttlebridge:bump_version", p.beforeUpdate); err != nil {
		return err
	}
	if err := update.After("gorm:update").Register("shuttlebridge:log_update", p.afterUpdate); err != nil {
		return err
	}
	return db.Callback().Delete().After("gorm:delete").Register("shuttlebridge:log_delete", p.afterDelete)
}

func (p *Plugin) beforeCreate(db *gorm.DB) {
	for _, row := range rowsOf(db) {
		if row.RowID() == 0 && p.IDs != nil {
			row.SetRowID(p.IDs.Next())
		}
		if row.RowVersion() == 0 {
			row.SetRowVersion(1)
		}
	}
}

func (p *Plugin) afterCreate(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	for _, row := range rowsOf(db) {
		p.appendEntry(db, models.OpInsert, row, true)
	}
}

func (p *Plugin) beforeUpdate(db *gorm.DB) {
	if IsApply(db.Statement.Context) || !realChange(db) {
		return
	}
	for _, row := range rowsOf(db) {
		next := row.RowVersion() + 1
		row.SetRowVersion(next)
		// SetColumn covers map-based updates, where the struct field alone
		// would not reach the UPDATE statement.
		db.Statement.SetColumn("version", next, true)
	}
}

func (p *Plugin) afterUpdate(db *gorm.DB) {
	if db.Error != nil || !realChange(db) {
		return
	}
	for _, row := range rowsOf(db) {
		p.appendEntry(db, models.OpUpdate, row, true)
	}
}

func (p *Plugin) afterDelete(db *gorm.DB) {
	if db.Error != nil {
		return
	}
	for _, row := range rowsOf(db) {
		p.appendEntry(db, models.OpDelete, row, false)
	}
}

func (p *Plugin) appendEntry(db *gorm.DB, op string, row schema.Row, withSummary bool) {
	stmt := db.Statement
	if stmt.Table == "" || row.RowID() == 0 {
		return
	}
	entry := models.ChangeLog{
		Tenant:     tenant.From(stmt.Context),
		Table:      stmt.Table,
		PK:         row.RowID(),
		Op:         op,
		Version:    row.RowVersion(),
		OriginNode: Origin(stmt.Context),
	}
	if withSummary {
		entry.Summary = datatypes.JSONMap(row.RowSummary())
	}
	// Session with NewDB keeps the statement's connection, so the entry
	// commits or rolls back with the mutation it records.
	if err := db.Session(&gorm.Session{NewDB: true}).Create(&entry).Error; err != nil {
		if p.Logger != nil {
			p.Logger.Error("change-log append failed",
				zap.String("table", entry.Table),
				zap.Int64("pk", entry.PK),
				zap.String("op", op),
				zap.Error(err))
		}
		_ = db.AddError(err)
	}
}

// realChange reports whether the statement touches anything beyond the
// bookkeeping columns. Map-based updates are inspected column by column;
// struct saves always count as real changes, since gorm keeps no per-field
// history for them.
func realChange(db *gorm.DB) bool {
	stmt := db.Statement
	dest, ok := stmt.Dest.(map[string]any)
	if !ok {
		return true
	}
	for k := range dest {
		col := k
		if stmt.Schema != nil {
			if f := stmt.Schema.LookUpField(k); f != nil {
				col = f.DBName
			}
		}
		if !bookkeepingColumns[col] {
			return true
		}
	}
	return false
}

func rowsOf(db *gorm.DB) []schema.Row {
	v := db.Statement.ReflectValue
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]schema.Row, 0, v.Len())
		for i := 0; i < v.Len(); i++ {
			if row, ok := rowAt(v.Index(i)); ok {
				out = append(out, row)
			}
		}
		return out
	case reflect.Struct:
		if row, ok := rowAt(v); ok {
			return []schema.Row{row}
		}
	}
	return nil
}

func rowAt(v reflect.Value) (schema.Row, bool) {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil, false
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct || !v.CanAddr() {
		return nil, false
	}
	row, ok := v.Addr().Interface().(schema.Row)
	return row, ok
}
