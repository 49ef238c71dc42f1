package sst

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/refs"
)

// LevelList is an immutable snapshot of the tables in the database. Level 0
// holds flushed tables, newest first, whose key ranges may overlap. The last
// level holds the sorted run written by compaction.
//
// The list holds a reference to each of its tables. Readers hold a reference
// to the list while reading so that replaced tables aren't deleted under them.
type LevelList struct {
	levels       []Level
	refCount     *refs.RefCount
	LatestSeqNum uint64
}

type Level struct {
	tables []*Table
	Num    int
	// The total byte size of all tables in this level
	ByteSize int64
}

func (l Level) Tables() []*Table {
	return l.tables
}

func NewEmptyLevelList(levelCount int) *LevelList {
	return NewLevelListOfTables(make([][]*Table, levelCount))
}

// NewLevelListOfTables takes ownership of the tables.
func NewLevelListOfTables(tables [][]*Table) *LevelList {
	if len(tables) <= 0 {
		panic("disk tables must have at least one level")
	}

	ll := &LevelList{
		levels:   make([]Level, len(tables)),
		refCount: refs.NewRefCount(),
	}
	for i, levelTables := range tables {
		ll.levels[i] = Level{Num: i}
		ll.AddTables(i, levelTables...)
	}
	return ll
}

// Get returns the newest entry for a key, including deletes.
func (ll *LevelList) Get(key []byte) (kv.Entry, error) {
	for _, t := range ll.Tables() {
		if !t.RangeContainsKey(key) {
			continue
		}
		v, err := t.Get(key)
		if err != nil {
			if err == kv.ErrNotFound {
				continue
			}
			return nil, fmt.Errorf("table %s, %w", t.Name(), err)
		}
		return v, nil
	}
	return nil, kv.ErrNotFound
}

// Iters opens an iterator for each table that may have keys with the prefix,
// newest table first.
func (ll *LevelList) Iters(prefix []byte) ([]*Iterator, error) {
	var iters []*Iterator
	for _, t := range ll.Tables() {
		if prefix != nil && !t.RangeContainsPrefix(prefix) {
			continue
		}
		it, err := t.Iter(prefix)
		if err != nil {
			for _, opened := range iters {
				err = errors.Join(err, opened.Close())
			}
			return nil, err
		}
		iters = append(iters, it)
	}
	return iters, nil
}

// Tables returns every table ordered from newest to oldest.
func (ll *LevelList) Tables() []*Table {
	var tables []*Table
	for _, l := range ll.levels {
		tables = append(tables, l.tables...)
	}
	slices.SortFunc(tables, OrderNewToOld)
	return tables
}

func (ll *LevelList) TableCounts() []int {
	counts := make([]int, len(ll.levels))
	for i, l := range ll.levels {
		counts[i] = len(l.tables)
	}
	return counts
}

func (ll *LevelList) At(levelIndex int) Level {
	if levelIndex < 0 {
		levelIndex = len(ll.levels) + levelIndex
	}
	if levelIndex >= len(ll.levels) {
		panic(fmt.Sprintf("tried to read L%d which is out of range (there are %d levels)", levelIndex, len(ll.levels)))
	}
	return ll.levels[levelIndex]
}

// AddTables adds tables to a level. Level 0 keeps the newest table first and
// other levels are ordered by key.
func (ll *LevelList) AddTables(levelIndex int, tables ...*Table) {
	if levelIndex < 0 {
		levelIndex = len(ll.levels) + levelIndex
	}
	if levelIndex >= len(ll.levels) {
		panic(fmt.Sprintf("tried to add to L%d which is out of range (there are %d levels)", levelIndex, len(ll.levels)))
	}

	level := ll.levels[levelIndex]
	level.tables = slices.Concat(level.tables, tables)
	if levelIndex == 0 {
		slices.SortFunc(level.tables, OrderNewToOld)
	} else {
		slices.SortFunc(level.tables, func(a, b *Table) int {
			return strings.Compare(string(a.startKey), string(b.startKey))
		})
	}
	for _, t := range tables {
		level.ByteSize += t.Size()
		ll.LatestSeqNum = max(ll.LatestSeqNum, t.maxSeqNum)
	}
	ll.levels[levelIndex] = level
}

// RemoveTables removes tables from every level and drops the list's reference
// to them.
func (ll *LevelList) RemoveTables(tables []*Table) error {
	var errs []error
	for i, level := range ll.levels {
		kept := make([]*Table, 0, len(level.tables))
		var byteSize int64
		for _, t := range level.tables {
			if slices.Contains(tables, t) {
				errs = append(errs, t.DropRef())
				continue
			}
			kept = append(kept, t)
			byteSize += t.Size()
		}
		ll.levels[i] = Level{tables: kept, Num: i, ByteSize: byteSize}
	}
	return errors.Join(errs...)
}

// NewWithChangeSet returns a new list with the changes applied. The new list
// holds its own references to the tables it shares with this list.
func (ll *LevelList) NewWithChangeSet(cs *ChangeSet) (*LevelList, error) {
	nextLevels := make([]Level, len(ll.levels))
	for i, l := range ll.levels {
		nextLevels[i] = Level{tables: slices.Clone(l.tables), Num: l.Num, ByteSize: l.ByteSize}
		for _, t := range l.tables {
			t.HoldRef()
		}
	}

	nextLL := &LevelList{
		refCount:     refs.NewRefCount(),
		levels:       nextLevels,
		LatestSeqNum: ll.LatestSeqNum,
	}

	for _, a := range cs.additions {
		nextLL.AddTables(a.level, a.table)
	}
	if err := nextLL.RemoveTables(cs.removals); err != nil {
		return nil, err
	}

	return nextLL, nil
}

func (ll *LevelList) Diagnostics() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "level count: %d", len(ll.levels))

	for i, l := range ll.levels {
		fmt.Fprintf(&sb, "\nlevel %d, tables %d, size %d", i, len(l.tables), l.ByteSize)
		for _, t := range l.tables {
			fmt.Fprintf(&sb, "\n  %s", strings.ReplaceAll(t.Diagnostics(), "\n", "\n  "))
		}
	}

	return sb.String()
}

// Hold an additional ref beyond the initial ref during instantiation.
func (ll *LevelList) HoldRef() {
	ll.refCount.Hold()
}

// DropRef drops the list's references to its tables when the last reference
// to the list is dropped.
func (ll *LevelList) DropRef() error {
	if !ll.refCount.Drop() {
		return nil
	}
	var errs []error
	for _, level := range ll.levels {
		for _, table := range level.tables {
			errs = append(errs, table.DropRef())
		}
	}
	return errors.Join(errs...)
}
