package postgres

// queryDescribeColumns takes the table name; unquoted identifiers fold to
// lower case in PostgreSQL, so the lookup does too.
const queryDescribeColumns = `
	SELECT c.column_name, c.data_type
	FROM information_schema.columns c
	WHERE c.table_schema = current_schema()
		AND c.table_name = lower($1)
	ORDER BY c.ordinal_position`
