package tracking_test

import (
	"trackstore/internal/domain"
	"trackstore/internal/tracking"
)

type widget struct {
	ID      string
	Name    string
	Version int64
}

func (w *widget) EntityKey() any     { return w.ID }
func (w *widget) GetVersion() int64  { return w.Version }
func (w *widget) SetVersion(v int64) { w.Version = v }

type widgetMapping struct{}

func (widgetMapping) Table() string         { return "widgets" }
func (widgetMapping) KeyColumn() string     { return "id" }
func (widgetMapping) VersionColumn() string { return "version" }
func (widgetMapping) Columns() []string     { return []string{"id", "name", "version"} }
func (widgetMapping) New() domain.Entity    { return &widget{} }

func (widgetMapping) Values(e domain.Entity) []any {
	w := e.(*widget)
	return []any{w.ID, w.Name, w.Version}
}

func (widgetMapping) ScanTargets(e domain.Entity) []any {
	w := e.(*widget)
	return []any{&w.ID, &w.Name, &w.Version}
}

var _ tracking.Mapping = widgetMapping{}
