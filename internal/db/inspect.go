package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// sampleRowCount is how many example rows get appended to each table's DDL
// in schema output. The samples give the model concrete value shapes to
// generate queries against.
const sampleRowCount = 3

// renderRowCap bounds how many result rows a single query renders, so a
// runaway result set can't flood the conversation.
const renderRowCap = 200

// ListTables returns the names of all tables in the connected schema as a
// comma-separated list.
func (c *Client) ListTables(ctx context.Context) (string, error) {
	var query string
	switch c.dialect {
	case "sqlite":
		query = `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`
	default:
		query = "SHOW TABLES"
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return "", fmt.Errorf("scan table name: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("list tables: %w", err)
	}

	return strings.Join(names, ", "), nil
}

// TableSchema returns the CREATE TABLE definition for each requested table,
// followed by a few sample rows.
func (c *Client) TableSchema(ctx context.Context, tables []string) (string, error) {
	if len(tables) == 0 {
		return "", fmt.Errorf("no tables requested")
	}

	var b strings.Builder
	for i, table := range tables {
		if err := ensureIdentifier(table); err != nil {
			return "", err
		}

		ddl, err := c.tableDDL(ctx, table)
		if err != nil {
			return "", err
		}

		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(ddl)

		sample, err := c.sampleRows(ctx, table)
		if err != nil {
			c.logger.Warn("sample rows unavailable", "table", table, "error", err)
			continue
		}
		fmt.Fprintf(&b, "\n\n/*\n%d rows from %s table:\n%s\n*/", sampleRowCount, table, sample)
	}

	return b.String(), nil
}

func (c *Client) tableDDL(ctx context.Context, table string) (string, error) {
	switch c.dialect {
	case "sqlite":
		var ddl sql.NullString
		err := c.db.QueryRowContext(ctx,
			`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table,
		).Scan(&ddl)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		if err != nil {
			return "", fmt.Errorf("table ddl for %s: %w", table, err)
		}
		return ddl.String, nil
	default:
		var name, ddl string
		err := c.db.QueryRowContext(ctx, "SHOW CREATE TABLE `"+table+"`").Scan(&name, &ddl)
		if err == sql.ErrNoRows {
			return "", fmt.Errorf("%w: %s", ErrUnknownTable, table)
		}
		if err != nil {
			return "", fmt.Errorf("table ddl for %s: %w", table, err)
		}
		return ddl, nil
	}
}

func (c *Client) sampleRows(ctx context.Context, table string) (string, error) {
	quoted := table
	if c.dialect == "mysql" {
		quoted = "`" + table + "`"
	}
	return c.renderQuery(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoted, sampleRowCount))
}

// RunQuery executes a read-only statement and returns a textual rendering of
// the result set. The read-only guard runs before the database sees the
// statement; violations return ErrUnsafeStatement.
func (c *Client) RunQuery(ctx context.Context, query string) (string, error) {
	if err := EnsureReadOnly(query); err != nil {
		return "", err
	}
	return c.renderQuery(ctx, query)
}

// renderQuery runs a query and renders the result set as a header line
// followed by pipe-separated rows.
func (c *Client) renderQuery(ctx context.Context, query string) (string, error) {
	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return "", fmt.Errorf("read columns: %w", err)
	}

	var b strings.Builder
	b.WriteString(strings.Join(cols, " | "))

	values := make([]sql.RawBytes, len(cols))
	scanArgs := make([]any, len(cols))
	for i := range values {
		scanArgs[i] = &values[i]
	}

	count := 0
	for rows.Next() {
		if count >= renderRowCap {
			fmt.Fprintf(&b, "\n... output truncated at %d rows", renderRowCap)
			break
		}
		if err := rows.Scan(scanArgs...); err != nil {
			return "", fmt.Errorf("scan row: %w", err)
		}

		fields := make([]string, len(values))
		for i, v := range values {
			if v == nil {
				fields[i] = "NULL"
			} else {
				fields[i] = string(v)
			}
		}
		b.WriteString("\n" + strings.Join(fields, " | "))
		count++
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("iterate rows: %w", err)
	}

	if count == 0 {
		b.WriteString("\n(no rows)")
	}

	return b.String(), nil
}
