// Package errors defines the typed error taxonomy shared by every component
// of the storage core. Errors carry a closed Kind tag plus a MySQL-compatible
// message, so the (out of scope) wire-protocol layer can map them to error
// codes and SQLSTATEs without inspecting message text.
package errors

import (
	"fmt"
	"strings"

	cockroachdberrors "github.com/cockroachdb/errors"
)

// Kind is the closed set of error categories the storage core raises.
type Kind int

const (
	KindIo Kind = iota
	KindSyntax
	KindTable
	KindColumn
	KindType
	KindTransaction
	KindConstraint
	KindJson
	KindProtocol
	KindAuth
	KindInternal
)

// Error is the unified error type for storage-core operations.
type Error struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap lets errors.Is/errors.As see through to a wrapped cause, when one
// was attached via Wrap.
func (e *Error) Unwrap() error {
	return e.cause
}

func newErr(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches an underlying error (typically an I/O failure from the WAL
// worker or filesystem) to a typed Error, preserving the chain for
// errors.Is/errors.As via cockroachdb/errors, which is the one dependency
// this package reaches for specifically because it preserves wrapped causes
// across process/log boundaries better than stdlib fmt.Errorf("%w").
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	wrapped := cockroachdberrors.Wrapf(cause, format, args...)
	return &Error{Kind: kind, Message: wrapped.Error(), cause: cause}
}

const defaultDatabase = "minisql"

// TableNotFound: MySQL format "Table 'database.table' doesn't exist".
func TableNotFound(tableName string) *Error {
	return newErr(KindTable, "Table '%s.%s' doesn't exist", defaultDatabase, tableName)
}

// TableAlreadyExists: MySQL format "Table 'table' already exists".
func TableAlreadyExists(tableName string) *Error {
	return newErr(KindTable, "Table '%s' already exists", tableName)
}

// ColumnContext names the clause a column reference appears in, for
// MySQL-style "Unknown column '...' in '...'" messages.
type ColumnContext int

const (
	ContextFieldList ColumnContext = iota
	ContextWhereClause
	ContextOrderClause
	ContextGroupByClause
	ContextHavingClause
	ContextOnClause
	ContextInsertList
	ContextUpdateClause
	ContextGeneral
)

func (c ColumnContext) mysqlClause() string {
	switch c {
	case ContextWhereClause:
		return "where clause"
	case ContextOrderClause:
		return "order clause"
	case ContextGroupByClause:
		return "group statement"
	case ContextHavingClause:
		return "having clause"
	case ContextOnClause:
		return "on clause"
	default:
		return "field list"
	}
}

func UnknownColumn(columnName string, ctx ColumnContext) *Error {
	return newErr(KindColumn, "Unknown column '%s' in '%s'", columnName, ctx.mysqlClause())
}

func UnknownColumnQualified(table, column string, ctx ColumnContext) *Error {
	return newErr(KindColumn, "Unknown column '%s.%s' in '%s'", table, column, ctx.mysqlClause())
}

func ColumnCountMismatch(expected, got int) *Error {
	return newErr(KindColumn, "Column count doesn't match value count (expected %d, got %d)", expected, got)
}

func DuplicateTableAlias(alias string) *Error {
	return newErr(KindTable, "Not unique table/alias: '%s'", alias)
}

// IndexNotFound: kept from the teacher's own error vocabulary, which
// original_source has no direct analog for (it resolves missing indexes
// through Option<IndexMetadata> rather than an error).
func IndexNotFound(name string) *Error {
	return newErr(KindInternal, "index %q not found", name)
}

// TwoPrimaryKeys / PrimaryKeyNotDefined: kept from the teacher's
// pkg/errors. Catalog.CreateTable returns TwoPrimaryKeys when more than
// one column is a primary key; a table with no primary key is accepted.
func TwoPrimaryKeys(total int) *Error {
	return newErr(KindConstraint, "table defines %d primary keys; only one primary key is allowed", total)
}

func PrimaryKeyNotDefined(tableName string) *Error {
	return newErr(KindConstraint, "primary key not defined for table %q", tableName)
}

// DuplicateEntry formats the PK-violation message exactly as
// original_source's granite/handler.rs does: "Duplicate entry '<v1-v2-...>'
// for key 'PRIMARY'".
func DuplicateEntry(pkValues []string) *Error {
	return newErr(KindConstraint, "Duplicate entry '%s' for key 'PRIMARY'", strings.Join(pkValues, "-"))
}

func InvalidTableName(name, reason string) *Error {
	return newErr(KindSyntax, "invalid table name %q: %s", name, reason)
}

func SyntaxError(format string, args ...any) *Error {
	return newErr(KindSyntax, format, args...)
}

func TransactionError(format string, args ...any) *Error {
	return newErr(KindTransaction, format, args...)
}

func IoError(format string, args ...any) *Error {
	return newErr(KindIo, format, args...)
}

func InternalError(format string, args ...any) *Error {
	return newErr(KindInternal, format, args...)
}

func JsonError(format string, args ...any) *Error {
	return newErr(KindJson, format, args...)
}

// MySQL error code subset (original_source/src/error.rs mysql_error_codes).
const (
	ErParseError       = 1064
	ErNoSuchTable      = 1146
	ErTableExistsError = 1050
	ErBadFieldError    = 1054
	ErAccessDenied     = 1045
	ErUnknownComError  = 1047
	ErNonUniqTable     = 1066
	ErLockWaitTimeout  = 1205
	ErLockDeadlock     = 1213
)

// MySQLCode maps this error to a MySQL numeric error code.
func (e *Error) MySQLCode() uint16 {
	switch e.Kind {
	case KindSyntax:
		return ErParseError
	case KindTable:
		if strings.Contains(e.Message, "doesn't exist") {
			return ErNoSuchTable
		}
		if strings.Contains(e.Message, "Not unique table/alias") {
			return ErNonUniqTable
		}
		return ErTableExistsError
	case KindColumn:
		return ErBadFieldError
	case KindAuth:
		return ErAccessDenied
	case KindTransaction:
		if strings.Contains(e.Message, "timeout") {
			return ErLockWaitTimeout
		}
		if strings.Contains(e.Message, "deadlock") {
			return ErLockDeadlock
		}
		return ErUnknownComError
	default:
		return ErUnknownComError
	}
}

// SQLState maps this error to a MySQL-convention SQLSTATE.
func (e *Error) SQLState() string {
	switch e.Kind {
	case KindSyntax:
		return "42000"
	case KindTable:
		return "42S02"
	case KindColumn:
		return "42S22"
	case KindAuth:
		return "28000"
	case KindTransaction:
		return "40001"
	default:
		return "HY000"
	}
}
