package dkv

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/segmentio/ksuid"
	"reduction.dev/mergekv/dkv/bg"
	"reduction.dev/mergekv/dkv/fields"
	"reduction.dev/mergekv/dkv/iterators"
	"reduction.dev/mergekv/dkv/kv"
	"reduction.dev/mergekv/dkv/memtable"
	"reduction.dev/mergekv/dkv/sst"
	"reduction.dev/mergekv/dkv/storage"
	"reduction.dev/mergekv/util/size"
)

// Level 0 holds flushed tables and the last level holds the compacted run.
const numLevels = 2

type DB struct {
	fs          storage.FileSystem
	mtables     *memtable.List
	sstables    *sst.LevelList
	tableWriter *sst.TableWriter
	compactor   *sst.Compactor
	tasks       *bg.AsyncGroup
	// Flushes and compactions share one queue so that table IDs increase with
	// the recency of their entries.
	tableTasks *bg.TaskQueue
	seqNum     uint64 // The latest sequence number written
	mu         *sync.RWMutex
	writeMu    *sync.Mutex
	logger     *slog.Logger
}

type DBOptions struct {
	FileSystem                  storage.FileSystem
	MemTableSize                uint64
	TargetFileSize              uint64
	L0TableNumCompactionTrigger int
	Logger                      *slog.Logger
	// Identifies the database in logs. A ksuid is generated when empty.
	InstanceID string
}

// Open loads the tables saved in the file system and returns a database
// ready for reads and writes.
func Open(options DBOptions) (*DB, error) {
	if options.FileSystem == nil {
		return nil, errors.New("dkv: missing file system")
	}
	// Default size to 64 MB
	if options.MemTableSize == 0 {
		options.MemTableSize = 64 * size.MB
	}
	// Default table file size to 256 MB
	if options.TargetFileSize == 0 {
		options.TargetFileSize = 256 * size.MB
	}
	// Default L0 compaction trigger to 4
	if options.L0TableNumCompactionTrigger == 0 {
		options.L0TableNumCompactionTrigger = 4
	}
	if options.InstanceID == "" {
		options.InstanceID = ksuid.New().String()
	}
	// Set a default logger
	if options.Logger == nil {
		options.Logger = slog.Default()
	}
	logger := options.Logger.With("instanceID", "dkv-"+options.InstanceID)

	tables, nextTableID, err := openTables(options.FileSystem)
	if err != nil {
		return nil, err
	}
	sstables := sst.NewLevelListOfTables(append([][]*sst.Table{tables}, make([][]*sst.Table, numLevels-1)...))

	tw := sst.NewTableWriter(options.FileSystem, nextTableID)
	db := &DB{
		fs: options.FileSystem,
		mtables: memtable.NewList(&memtable.MemTableOptions{
			MemSize: options.MemTableSize,
		}),
		sstables:    sstables,
		tableWriter: tw,
		compactor: &sst.Compactor{
			TableWriter:               tw,
			L0RunNumCompactionTrigger: options.L0TableNumCompactionTrigger,
			TargetTableSize:           int64(options.TargetFileSize),
		},
		tasks:      bg.NewAsyncGroup(),
		tableTasks: bg.NewQueue(16),
		seqNum:     sstables.LatestSeqNum,
		mu:         &sync.RWMutex{},
		writeMu:    &sync.Mutex{},
		logger:     logger,
	}
	logger.Info("opened db", "tables", len(tables), "seqNum", db.seqNum)
	return db, nil
}

// openTables opens every table file in the file system. Returns the ID to use
// for the next table.
func openTables(fs storage.FileSystem) ([]*sst.Table, uint64, error) {
	names, err := fs.List()
	if err != nil {
		return nil, 0, fmt.Errorf("listing tables: %w", err)
	}

	var tables []*sst.Table
	var nextID uint64
	for _, name := range names {
		id, ok := sst.ParseTableName(name)
		if !ok {
			continue
		}
		t, err := sst.OpenTable(fs, name)
		if err != nil {
			return nil, 0, err
		}
		tables = append(tables, t)
		nextID = max(nextID, id+1)
	}
	return tables, nextID, nil
}

// ErrEntryTooLarge is returned for keys or values longer than
// fields.MaxVarBytesLen, which table rows can't encode.
var ErrEntryTooLarge = errors.New("entry too large")

// Put writes a value for key. An empty value deletes the key.
func (db *DB) Put(key []byte, value []byte) error {
	if kv.IsTombstone(value) {
		return db.Delete(key)
	}
	if err := checkEntrySize(key, value); err != nil {
		return err
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	nextSeqNum := db.seqNum + 1
	mtFull := db.mtables.Put(key, value, nextSeqNum)
	db.seqNum = nextSeqNum

	if mtFull {
		db.rotateMemtable()
	}
	return nil
}

func (db *DB) Delete(key []byte) error {
	if err := checkEntrySize(key, nil); err != nil {
		return err
	}
	db.writeMu.Lock()
	defer db.writeMu.Unlock()

	nextSeqNum := db.seqNum + 1
	mtFull := db.mtables.Delete(key, nextSeqNum)
	db.seqNum = nextSeqNum

	if mtFull {
		db.rotateMemtable()
	}
	return nil
}

func checkEntrySize(key, value []byte) error {
	if len(key) > fields.MaxVarBytesLen {
		return fmt.Errorf("key of %d bytes: %w", len(key), ErrEntryTooLarge)
	}
	if len(value) > fields.MaxVarBytesLen {
		return fmt.Errorf("value of %d bytes: %w", len(value), ErrEntryTooLarge)
	}
	return nil
}

// Get returns the newest value for a key or kv.ErrNotFound if the key was
// never written or was deleted.
func (db *DB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	entry, err := db.mtables.Get(key)
	sstables := db.sstables
	sstables.HoldRef()
	db.mu.RUnlock()
	defer db.dropSSTables(sstables)

	// Then try the SSTables
	if err == kv.ErrNotFound {
		entry, err = sstables.Get(key)
	}
	if err != nil {
		return nil, err
	}
	if entry.IsDelete() {
		return nil, kv.ErrNotFound
	}
	return entry.Value(), nil
}

// NewIterator returns a cursor over the live keys starting with prefix in
// ascending order. The cursor reads a snapshot of the memtables and tables
// taken now. Once reading fails the cursor stays invalid and Next keeps
// returning iterators.ErrIteratorBroken. Callers must Close the cursor.
func (db *DB) NewIterator(prefix []byte) (*iterators.FusedIterator[[]byte], error) {
	db.mu.RLock()
	memIters := db.mtables.Iters(prefix)
	sstables := db.sstables
	sstables.HoldRef()
	db.mu.RUnlock()

	// Table iterators hold their own table references.
	tableIters, err := sstables.Iters(prefix)
	db.dropSSTables(sstables)
	if err != nil {
		return nil, fmt.Errorf("opening table iterators: %w", err)
	}

	// Sources are in priority order: memtables then tables, newest first.
	sources := make([]iterators.StorageIterator, 0, len(memIters)+len(tableIters))
	for _, it := range memIters {
		sources = append(sources, it)
	}
	for _, it := range tableIters {
		sources = append(sources, it)
	}

	lsm, err := iterators.NewLsmIterator(iterators.NewMergeIterator(sources))
	if err != nil {
		return nil, fmt.Errorf("positioning iterator: %w", err)
	}
	return iterators.NewFusedIterator[[]byte](lsm), nil
}

// ScanPrefix yields the live keys and values starting with prefix. Any error
// stops the scan and is written to errOut.
func (db *DB) ScanPrefix(prefix []byte, errOut *error) iter.Seq2[[]byte, []byte] {
	return func(yield func([]byte, []byte) bool) {
		it, err := db.NewIterator(prefix)
		if err != nil {
			*errOut = err
			return
		}
		defer func() {
			if err := it.Close(); err != nil && *errOut == nil {
				*errOut = err
			}
		}()

		for it.Valid() {
			if !yield(it.Key(), it.Value()) {
				return
			}
			if err := it.Next(); err != nil {
				*errOut = err
				return
			}
		}
	}
}

// Flush seals the active memtable and writes it to a table in the background.
func (db *DB) Flush() {
	db.writeMu.Lock()
	defer db.writeMu.Unlock()
	if db.mtables.ActiveSize() == 0 {
		return
	}
	db.rotateMemtable()
}

// Compact merges all tables into one sorted run in the background.
func (db *DB) Compact() {
	db.tasks.Enqueue(db.tableTasks, func() error {
		return db.compact(db.compactor.CompactAll)
	})
}

// WaitOnTasks waits for background flushes and compactions and returns the
// first error any of them had.
func (db *DB) WaitOnTasks() error {
	return db.tasks.Wait()
}

// Close flushes the memtables and waits for background tasks. Tables stay in
// the file system to be opened again.
func (db *DB) Close() error {
	db.Flush()
	if err := db.WaitOnTasks(); err != nil {
		return fmt.Errorf("closing db: %w", err)
	}
	db.logger.Info("closed db", "seqNum", db.seqNum)
	return nil
}

func (db *DB) Diagnostics() string {
	var sb strings.Builder
	sb.WriteString(db.mtables.Diagnostics())
	fmt.Fprintf(&sb, "\nbackground tasks: %d", db.tasks.Pending())
	sb.WriteString("\ndisk tables\n")

	sstables := db.holdSSTables()
	defer db.dropSSTables(sstables)
	sb.WriteString(sstables.Diagnostics())

	return sb.String()
}

// TableCounts returns the number of tables in each level.
func (db *DB) TableCounts() []int {
	sstables := db.holdSSTables()
	defer db.dropSSTables(sstables)
	return sstables.TableCounts()
}

func (db *DB) rotateMemtable() {
	// Immediately replace the active table so that writes can continue.
	db.mtables.Rotate()

	// Write sealed tables to sstables
	db.tasks.Enqueue(db.tableTasks, func() error {
		if err := db.flushSealed(); err != nil {
			return err
		}
		return db.compact(db.compactor.Compact)
	})
}

func (db *DB) flushSealed() error {
	// An earlier task may have flushed all sealed tables already.
	sealedTables := db.mtables.Sealed()
	if len(sealedTables) == 0 {
		return nil
	}

	// Oldest memtables are written first to get the lowest table IDs.
	cs := &sst.ChangeSet{}
	for _, mt := range sealedTables {
		if mt.Size() == 0 {
			continue
		}
		t, err := db.tableWriter.Write(mt.Iter(nil))
		if err != nil {
			return fmt.Errorf("flushing memtable: %w", err)
		}
		cs.AddTables(0, t)
	}

	// Replace the set of sstables and clear old memtables in one lock
	db.mu.Lock()
	prev, err := db.applyChangeSet(cs)
	if err == nil {
		db.mtables.Dequeue(sealedTables)
	}
	db.mu.Unlock()
	if err != nil {
		return fmt.Errorf("flushing memtable: %w", err)
	}
	db.dropSSTables(prev)

	db.logger.Debug("flushed memtables", "count", len(sealedTables), "changes", cs.String())
	return nil
}

// compact runs a compaction step against the current tables and installs its
// result.
func (db *DB) compact(compaction func(*sst.LevelList) (*sst.ChangeSet, error)) error {
	sstables := db.holdSSTables()
	cs, err := compaction(sstables)
	db.dropSSTables(sstables)
	if err != nil {
		return fmt.Errorf("compacting: %w", err)
	}
	if cs == nil {
		return nil
	}

	db.mu.Lock()
	prev, err := db.applyChangeSet(cs)
	db.mu.Unlock()
	if err != nil {
		return fmt.Errorf("compacting: %w", err)
	}
	db.dropSSTables(prev)

	db.logger.Info("compacted tables", "changes", cs.String(), "levels", fmt.Sprint(db.TableCounts()))
	return nil
}

// applyChangeSet replaces the current tables. Must hold mu. Returns the
// previous list for the caller to release outside the lock.
func (db *DB) applyChangeSet(cs *sst.ChangeSet) (*sst.LevelList, error) {
	next, err := db.sstables.NewWithChangeSet(cs)
	if err != nil {
		return nil, err
	}
	prev := db.sstables
	db.sstables = next
	return prev, nil
}

func (db *DB) holdSSTables() *sst.LevelList {
	db.mu.RLock()
	defer db.mu.RUnlock()
	db.sstables.HoldRef()
	return db.sstables
}

// Dropping a list reference deletes tables that no newer list uses.
func (db *DB) dropSSTables(sstables *sst.LevelList) {
	if err := sstables.DropRef(); err != nil {
		db.logger.Error("releasing tables", "err", err)
	}
}
