package sst

import (
	"fmt"
	"strings"
)

// ChangeSet describes how a flush or compaction changes the level list.
// Negative levels count back from the last level.
type ChangeSet struct {
	additions []tableAddition
	removals  []*Table
}

type tableAddition struct {
	level int
	table *Table
}

func (cs *ChangeSet) IsEmpty() bool {
	return len(cs.additions) == 0 && len(cs.removals) == 0
}

func (cs *ChangeSet) AddTables(level int, tables ...*Table) {
	for _, t := range tables {
		cs.additions = append(cs.additions, tableAddition{level: level, table: t})
	}
}

func (cs *ChangeSet) RemoveTables(tables ...*Table) {
	cs.removals = append(cs.removals, tables...)
}

// String lists the added tables with their level and then the removed tables,
// like "+L0:000003.sst -000001.sst".
func (cs *ChangeSet) String() string {
	parts := make([]string, 0, len(cs.additions)+len(cs.removals))
	for _, a := range cs.additions {
		parts = append(parts, fmt.Sprintf("+L%d:%s", a.level, a.table.Name()))
	}
	for _, t := range cs.removals {
		parts = append(parts, "-"+t.Name())
	}
	return strings.Join(parts, " ")
}
