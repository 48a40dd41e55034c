package dirt

import (
	"sync"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// Table is an in-memory side input built from the lines of a completed
// stage's output. A Table is read-only once loaded and is shared by all
// tasks of a worker.
type Table interface {
	AddLine(line string)
}

// Tables holds the loaded broadcasts of a job by name.
type Tables map[string]Table

// Broadcast declares a side input of a Job. Its source stage must complete
// before the job starts.
type Broadcast struct {
	Name     string       // key of the table in Tables
	Stage    string       // stage whose output is loaded
	Location string       // explicit path glob; overrides Stage
	Optional bool         // degrade to an empty table if loading fails
	New      func() Table // returns an empty table
}

const broadcastCacheSize = 16

var (
	broadcastMu    sync.Mutex
	broadcastCache *lru.Cache
)

func cachedBroadcast(key string) (Table, bool) {
	if broadcastCache == nil {
		broadcastCache, _ = lru.New(broadcastCacheSize)
	}
	if t, ok := broadcastCache.Get(key); ok {
		return t.(Table), true
	}
	return nil, false
}

func (j *Job) broadcastLocation(b Broadcast) string {
	if b.Location != "" {
		return b.Location
	}
	return stageOutputGlob(j.fileSystem, j.workingLocation, b.Stage)
}

// loadTables loads every broadcast of j, reusing tables this worker has
// already loaded during the current run. A required broadcast that cannot
// be loaded fails the task; an optional one is replaced by an empty table.
func (j *Job) loadTables() (Tables, error) {
	tables := make(Tables, len(j.Broadcasts))

	broadcastMu.Lock()
	defer broadcastMu.Unlock()

	for _, b := range j.Broadcasts {
		location := j.broadcastLocation(b)
		cacheKey := j.runID + "|" + b.Name + "|" + location
		if table, ok := cachedBroadcast(cacheKey); ok {
			tables[b.Name] = table
			continue
		}

		table, err := loadBroadcast(j.fileSystem, location, b)
		if err != nil {
			if !b.Optional {
				return nil, errors.Wrapf(err, "load broadcast %s", b.Name)
			}
			log.Warnf("Optional broadcast %s unavailable, continuing without it: %s", b.Name, err)
			table = b.New()
		}

		broadcastCache.Add(cacheKey, table)
		tables[b.Name] = table
	}
	return tables, nil
}

func loadBroadcast(fs dirtfs.FileSystem, location string, b Broadcast) (Table, error) {
	files, err := fs.ListFiles(location)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, errors.Errorf("no files match %s", location)
	}

	table := b.New()
	lines := 0
	err = dirtfs.ReadLines(fs, location, func(line string) error {
		table.AddLine(line)
		lines++
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debugf("Loaded broadcast %s: %d lines from %d files", b.Name, lines, len(files))
	return table, nil
}
