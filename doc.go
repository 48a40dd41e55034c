/*Package dirt discovers inference rules from text with the DIRT algorithm,
running as a pipeline of MapReduce stages on local goroutines or on AWS
Lambda.

The runtime in this package executes a graph of Jobs. Each Job reads line
records, maps them into key-value pairs that are hash-partitioned into
shuffle bins, and optionally reduces each bin one key at a time. A Job may
declare Broadcasts: small tables built from the output of an earlier stage
and loaded once per worker. A stage starts only after every stage it reads
from has completed, so global aggregates are always complete when read.

The DIRT stages themselves live in internal/pkg/stages; cmd/dirt runs them.
*/
package dirt
