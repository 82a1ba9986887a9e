//go:build duckdb

package duckdb

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	goduckdb "github.com/marcboeker/go-duckdb"

	helpers "github.com/sandboxws/isotope/frameunion/pkg/arrow/helpers"
	"github.com/sandboxws/isotope/frameunion/pkg/union"
)

const (
	leftView  = "union_left"
	rightView = "union_right"
)

// Instance manages an isolated in-memory DuckDB database.
// Each pipeline gets its own Instance; it is not safe for concurrent use.
type Instance struct {
	db          *sql.DB
	conn        *sql.Conn
	alloc       memory.Allocator
	memoryLimit int64
	views       map[string]func() // release functions of registered views
}

// NewInstance creates a new in-memory DuckDB instance with the given memory limit.
// Pass 0 for memoryLimit to use the default (256MB).
func NewInstance(alloc memory.Allocator, memoryLimit int64) (*Instance, error) {
	if memoryLimit == 0 {
		memoryLimit = 256 * 1024 * 1024 // 256MB default
	}

	connector, err := goduckdb.NewConnector("", nil)
	if err != nil {
		return nil, fmt.Errorf("duckdb: create connector: %w", err)
	}

	db := sql.OpenDB(connector)

	// Grab a persistent connection for Arrow operations.
	conn, err := db.Conn(context.Background())
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("duckdb: get connection: %w", err)
	}

	limitMB := memoryLimit / (1024 * 1024)
	if limitMB < 1 {
		limitMB = 1
	}
	if _, err := conn.ExecContext(context.Background(), fmt.Sprintf("SET memory_limit='%dMB'", limitMB)); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("duckdb: set memory_limit: %w", err)
	}

	return &Instance{
		db:          db,
		conn:        conn,
		alloc:       alloc,
		memoryLimit: memoryLimit,
		views:       make(map[string]func()),
	}, nil
}

// Close destroys the DuckDB instance and releases all memory.
func (inst *Instance) Close() error {
	for name := range inst.views {
		inst.dropView(name)
	}
	if inst.conn != nil {
		inst.conn.Close()
	}
	if inst.db != nil {
		return inst.db.Close()
	}
	return nil
}

// RegisterView registers an Arrow RecordBatch as a DuckDB view with the given name,
// replacing any view previously registered under that name.
func (inst *Instance) RegisterView(batch arrow.Record, name string) error {
	inst.dropView(name)

	return inst.conn.Raw(func(driverConn interface{}) error {
		arrowConn, err := goduckdb.NewArrowFromConn(driverConn.(driver.Conn))
		if err != nil {
			return fmt.Errorf("duckdb: arrow from conn: %w", err)
		}

		recRdr, err := array.NewRecordReader(batch.Schema(), []arrow.Record{batch})
		if err != nil {
			return fmt.Errorf("duckdb: create record reader: %w", err)
		}

		release, err := arrowConn.RegisterView(recRdr, name)
		if err != nil {
			return fmt.Errorf("duckdb: register view %s: %w", name, err)
		}
		inst.views[name] = release
		return nil
	})
}

func (inst *Instance) dropView(name string) {
	if release, ok := inst.views[name]; ok {
		release()
		delete(inst.views, name)
	}
}

// Union implements union.Executor: both records are registered as views and
// the alignment plan runs as a single UNION ALL query.
func (inst *Instance) Union(left, right arrow.Record) (arrow.Record, error) {
	if left == nil {
		return nil, fmt.Errorf("%w: left record is nil", union.ErrInvalidArgument)
	}
	if right == nil {
		return nil, fmt.Errorf("%w: right record is nil", union.ErrInvalidArgument)
	}

	plan, err := union.NewPlan(left.Schema(), right.Schema())
	if err != nil {
		return nil, err
	}

	if err := inst.RegisterView(left, leftView); err != nil {
		return nil, err
	}
	defer inst.dropView(leftView)
	if err := inst.RegisterView(right, rightView); err != nil {
		return nil, err
	}
	defer inst.dropView(rightView)

	result, err := inst.Query(plan.SQL(leftView, rightView))
	if err != nil {
		return nil, err
	}
	return relabel(result, plan.Schema), nil
}

// relabel names the columns of rec after schema. DuckDB renames repeated
// column names, and the plan's names are the ones callers expect.
func relabel(rec arrow.Record, schema *arrow.Schema) arrow.Record {
	if int(rec.NumCols()) != schema.NumFields() {
		return rec
	}
	fields := make([]arrow.Field, schema.NumFields())
	changed := false
	for i := range fields {
		f := rec.Schema().Field(i)
		if f.Name != schema.Field(i).Name {
			f.Name = schema.Field(i).Name
			changed = true
		}
		fields[i] = f
	}
	if !changed {
		return rec
	}
	md := schema.Metadata()
	out := array.NewRecord(arrow.NewSchema(fields, &md), rec.Columns(), rec.NumRows())
	rec.Release()
	return out
}

// Query executes a SQL query and returns the result as an Arrow RecordBatch.
func (inst *Instance) Query(querySQL string) (arrow.Record, error) {
	var result arrow.Record
	err := inst.conn.Raw(func(driverConn interface{}) error {
		arrowConn, err := goduckdb.NewArrowFromConn(driverConn.(driver.Conn))
		if err != nil {
			return fmt.Errorf("duckdb: arrow from conn: %w", err)
		}

		rdr, err := arrowConn.QueryContext(context.Background(), querySQL)
		if err != nil {
			return fmt.Errorf("duckdb: query: %w", err)
		}
		defer rdr.Release()

		var records []arrow.Record
		for rdr.Next() {
			rec := rdr.Record()
			rec.Retain()
			records = append(records, rec)
		}
		if rdr.Err() != nil {
			for _, r := range records {
				r.Release()
			}
			return fmt.Errorf("duckdb: read results: %w", rdr.Err())
		}

		switch len(records) {
		case 0:
			cols := make([]arrow.Array, rdr.Schema().NumFields())
			for i := range cols {
				cols[i] = helpers.NullColumn(inst.alloc, rdr.Schema().Field(i).Type, 0)
			}
			result = array.NewRecord(rdr.Schema(), cols, 0)
			for _, c := range cols {
				c.Release()
			}
			return nil
		case 1:
			result = records[0]
			return nil
		}

		result, err = helpers.ConcatRecords(inst.alloc, records)
		for _, r := range records {
			r.Release()
		}
		return err
	})

	return result, err
}
