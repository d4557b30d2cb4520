package cascade

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/koba/db-cascade/internal/database"
	"github.com/koba/db-cascade/internal/schema"
)

// Kind classifies a statement issued by the cascade
type Kind string

const (
	KindSelect     Kind = "select"
	KindUnlink     Kind = "unlink"
	KindBulkDelete Kind = "bulk-delete"
	KindDelete     Kind = "delete"
)

// Statement is one complete, parameterized SQL statement
type Statement struct {
	Kind  Kind
	Table string
	SQL   string
	Args  []interface{}
}

// String renders the statement with its arguments inlined. Placeholders
// inside quoted identifiers or string literals are left alone.
func (s Statement) String() string {
	if len(s.Args) == 0 {
		return s.SQL
	}

	var sb strings.Builder
	var quote byte
	next := 0
	for i := 0; i < len(s.SQL); i++ {
		c := s.SQL[i]
		if quote != 0 {
			if c == quote {
				quote = 0
			}
			sb.WriteByte(c)
			continue
		}

		switch c {
		case '"', '`', '\'':
			quote = c
			sb.WriteByte(c)
		case '?':
			if next < len(s.Args) {
				sb.WriteString(formatValue(s.Args[next]))
				next++
			} else {
				sb.WriteByte(c)
			}
		case '$':
			j := i + 1
			for j < len(s.SQL) && s.SQL[j] >= '0' && s.SQL[j] <= '9' {
				j++
			}
			n, err := strconv.Atoi(s.SQL[i+1 : j])
			if err != nil || n < 1 || n > len(s.Args) {
				sb.WriteByte(c)
				continue
			}
			sb.WriteString(formatValue(s.Args[n-1]))
			i = j - 1
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// StatementBuilder renders cascade statements for one dialect
type StatementBuilder struct {
	dialect database.Dialect
}

// NewStatementBuilder creates a new statement builder
func NewStatementBuilder(dialect database.Dialect) *StatementBuilder {
	return &StatementBuilder{dialect: dialect}
}

// SelectKeys selects the primary key columns of rows in fk.Table pointing at value
func (b *StatementBuilder) SelectKeys(fk schema.ForeignKey, keys []string, value interface{}) Statement {
	columns := make([]string, len(keys))
	for i, k := range keys {
		columns[i] = b.dialect.QuoteIdentifier(k)
	}

	return Statement{
		Kind:  KindSelect,
		Table: fk.Table,
		SQL: fmt.Sprintf("SELECT %s FROM %s WHERE %s;",
			strings.Join(columns, ", "),
			b.dialect.QuoteIdentifier(fk.Table),
			b.equals(fk.Column, 1),
		),
		Args: []interface{}{value},
	}
}

// Unlink nulls the referencing column of rows in fk.Table pointing at value
func (b *StatementBuilder) Unlink(fk schema.ForeignKey, value interface{}) Statement {
	return Statement{
		Kind:  KindUnlink,
		Table: fk.Table,
		SQL: fmt.Sprintf("UPDATE %s SET %s = NULL WHERE %s;",
			b.dialect.QuoteIdentifier(fk.Table),
			b.dialect.QuoteIdentifier(fk.Column),
			b.equals(fk.Column, 1),
		),
		Args: []interface{}{value},
	}
}

// BulkDelete deletes every row in fk.Table pointing at value
func (b *StatementBuilder) BulkDelete(fk schema.ForeignKey, value interface{}) Statement {
	return Statement{
		Kind:  KindBulkDelete,
		Table: fk.Table,
		SQL: fmt.Sprintf("DELETE FROM %s WHERE %s;",
			b.dialect.QuoteIdentifier(fk.Table),
			b.equals(fk.Column, 1),
		),
		Args: []interface{}{value},
	}
}

// Delete deletes the single row of table identified by id
func (b *StatementBuilder) Delete(table string, id schema.RowIdentity) Statement {
	return Statement{
		Kind:  KindDelete,
		Table: table,
		SQL: fmt.Sprintf("DELETE FROM %s WHERE %s;",
			b.dialect.QuoteIdentifier(table),
			b.equals(id.Column(), 1),
		),
		Args: []interface{}{id.Value()},
	}
}

func (b *StatementBuilder) equals(column string, n int) string {
	return fmt.Sprintf("%s = %s", b.dialect.QuoteIdentifier(column), b.dialect.Placeholder(n))
}

func formatValue(val interface{}) string {
	if val == nil {
		return "NULL"
	}

	switch v := val.(type) {
	case string:
		// Escape single quotes
		escaped := strings.ReplaceAll(v, "'", "''")
		return fmt.Sprintf("'%s'", escaped)
	case []byte:
		return formatValue(string(v))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", v)
	case float32, float64:
		return fmt.Sprintf("%v", v)
	case bool:
		if v {
			return "TRUE"
		}
		return "FALSE"
	default:
		return fmt.Sprintf("'%v'", v)
	}
}
