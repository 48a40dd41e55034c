package dirt

// ValueIterator iterates over a sequence of values.
// This is used during the Reduce phase, wherein a reduce task
// iterates over all values for a particular key.
type ValueIterator struct {
	values chan string
}

// Iter iterates over all the values in the iterator.
func (v *ValueIterator) Iter() <-chan string {
	return v.values
}

func newValueIterator(c chan string) ValueIterator {
	return ValueIterator{
		values: c,
	}
}

// ValuesOf returns a ValueIterator over values. The iterator does not need
// to be drained.
func ValuesOf(values []string) ValueIterator {
	c := make(chan string, len(values))
	for _, v := range values {
		c <- v
	}
	close(c)
	return newValueIterator(c)
}

// Mapper defines the interface for a Map task.
type Mapper interface {
	Map(key, value string, emitter Emitter)
}

// Reducer defines the interface for a Reduce task. A Reducer is also used
// as a Job's combiner, in which case its output is fed back into the
// shuffle and must be valid Reduce input.
type Reducer interface {
	Reduce(key string, values ValueIterator, emitter Emitter)
}

// MapperFunc adapts a function to the Mapper interface.
type MapperFunc func(key, value string, emitter Emitter)

// Map calls f.
func (f MapperFunc) Map(key, value string, emitter Emitter) {
	f(key, value, emitter)
}

// ReducerFunc adapts a function to the Reducer interface.
type ReducerFunc func(key string, values ValueIterator, emitter Emitter)

// Reduce calls f.
func (f ReducerFunc) Reduce(key string, values ValueIterator, emitter Emitter) {
	f(key, values, emitter)
}

// TableMapper is a Mapper that reads broadcast tables. WithTables is
// called once per map task after the job's broadcasts are loaded, and
// returns the Mapper used for that task.
type TableMapper interface {
	Mapper
	WithTables(tables Tables) (Mapper, error)
}

// TableReducer is the Reducer counterpart of TableMapper.
type TableReducer interface {
	Reducer
	WithTables(tables Tables) (Reducer, error)
}

// keyValue is used to store intermediate shuffle data as key-value pairs
type keyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}
