package dataimport

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// importSQLite reads rows out of a SQLite database file. Without an
// explicit table or query it enumerates user tables (excluding sqlite_%
// internals), reads the first, and warns when more than one exists. The
// default query is bounded by MaxRows (DefaultMaxRows when unset) to keep
// arbitrary databases from blowing memory.
func importSQLite(ctx context.Context, path, displayName string, opts Options) *ImportResult {
	start := time.Now()
	result := &ImportResult{
		Success: true,
		Metadata: Metadata{
			Source:     SourceFile,
			FileName:   displayName,
			Format:     FormatSQLite,
			ImportedAt: start,
		},
	}
	fail := func(msg string) *ImportResult {
		result.addError(ImportError{Message: msg, Severity: ErrorSeverity})
		result.Metadata.Duration = time.Since(start)
		return result
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return fail(fmt.Sprintf("open database: %v", err))
	}
	defer db.Close()

	query := opts.Query
	if query == "" {
		table := opts.Table
		if table == "" {
			tables, err := listUserTables(ctx, db)
			if err != nil {
				return fail(fmt.Sprintf("list tables: %v", err))
			}
			if len(tables) == 0 {
				return fail("database has no user tables")
			}
			table = tables[0]
			if len(tables) > 1 {
				result.addWarning(fmt.Sprintf("database has %d tables, used %q (others: %s)",
					len(tables), table, strings.Join(tables[1:], ", ")))
			}
		}
		maxRows := opts.MaxRows
		if maxRows <= 0 {
			maxRows = DefaultMaxRows
		}
		query = fmt.Sprintf(`SELECT * FROM %s LIMIT %d OFFSET %d`, quoteIdent(table), maxRows, opts.SkipRows)
		result.Metadata.TableName = table
	}

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return fail(fmt.Sprintf("query: %v", err))
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return fail(fmt.Sprintf("read columns: %v", err))
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if opts.Query != "" && opts.MaxRows > 0 && result.RowCount >= opts.MaxRows {
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			result.addError(ImportError{
				Line:     result.RowCount + 1,
				Message:  fmt.Sprintf("scan row: %v", err),
				Severity: WarningSeverity,
			})
			continue
		}
		row := make(Row, len(columns))
		for i, col := range columns {
			row[col] = normalizeSQLiteValue(values[i])
		}
		result.Data = append(result.Data, row)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		result.addError(ImportError{Message: fmt.Sprintf("iterate rows: %v", err), Severity: ErrorSeverity})
	}

	if result.RowCount == 0 {
		result.Data = nil
		if !result.HasErrors() {
			result.addError(ImportError{Message: "empty query result", Severity: ErrorSeverity})
		}
	} else {
		result.Columns = columns
	}
	result.Metadata.Duration = time.Since(start)
	return result
}

// listUserTables returns non-system tables in name order.
func listUserTables(ctx context.Context, db *sql.DB) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// quoteIdent wraps an identifier in double quotes, escaping embedded ones.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// normalizeSQLiteValue maps driver values into the result value set.
// SQLite has no bool affinity, so integers stay numbers.
func normalizeSQLiteValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case int64:
		return float64(val)
	case float64:
		return val
	case bool:
		return val
	case []byte:
		return Coerce(string(val))
	case string:
		return Coerce(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", val)
	}
}
