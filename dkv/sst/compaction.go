package sst

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/VictoriaMetrics/metrics"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
)

var (
	compactionTablesIn  = metrics.NewCounter("compaction_tables_in")
	compactionTablesOut = metrics.NewCounter("compaction_tables_out")
)

type Compactor struct {
	L0RunNumCompactionTrigger int
	TableWriter               *TableWriter
	TargetTableSize           int64
}

// Compact merges every table into the last level once level 0 has reached
// the compaction trigger. Returns a nil ChangeSet when no compaction is needed.
func (c *Compactor) Compact(levels *LevelList) (*ChangeSet, error) {
	if len(levels.At(0).tables) < c.L0RunNumCompactionTrigger {
		return nil, nil
	}
	return c.CompactAll(levels)
}

// CompactAll merges every table into a new sorted run in the last level. Only
// the newest version of each key is kept and deletes are dropped since there
// is no older level left for them to hide.
func (c *Compactor) CompactAll(levels *LevelList) (*ChangeSet, error) {
	inputTables := levels.Tables()
	if len(inputTables) == 0 {
		return nil, nil
	}

	// Table iterators are opened newest first so that the newest table wins
	// ties in the merge.
	tableIters, err := levels.Iters(nil)
	if err != nil {
		return nil, fmt.Errorf("compaction opening tables: %w", err)
	}
	lsm, err := iterators.NewLsmIterator(iterators.NewMergeIterator(tableIters))
	if err != nil {
		return nil, fmt.Errorf("compaction reading tables: %w", err)
	}

	newTables, err := c.TableWriter.WriteRun(liveEntries{lsm}, uint64(c.TargetTableSize))
	if err != nil {
		return nil, errors.Join(fmt.Errorf("compaction writing tables: %w", err), lsm.Close())
	}
	if err := lsm.Close(); err != nil {
		return nil, err
	}

	compactionTablesIn.Add(len(inputTables))
	compactionTablesOut.Add(len(newTables))
	slog.Debug("compacted tables", "in", len(inputTables), "out", len(newTables))

	cs := &ChangeSet{}
	cs.AddTables(-1, newTables...)
	cs.RemoveTables(inputTables...)
	return cs, nil
}

// liveEntries presents the live entries of an LsmIterator as storage keys so
// they can be written to tables.
type liveEntries struct {
	*iterators.LsmIterator[*Iterator]
}

func (e liveEntries) Key() kv.Key {
	return kv.NewKey(e.LsmIterator.Key(), e.SeqNum())
}

var _ iterators.StorageIterator = liveEntries{}
