package query

import (
	"fmt"

	"github.com/bobboyms/minisql-core/pkg/catalog"
	"github.com/bobboyms/minisql-core/pkg/types"
)

// Conjunct pairs a column name with the condition a WHERE clause's
// top-level AND list applies to it. The executor is responsible for
// flattening a parsed WHERE tree down to this list; this package only
// decides what to do with it.
type Conjunct struct {
	Column    string
	Condition *ScanCondition
}

// ExtractEqualityConjuncts returns, in conjuncts' order, the column names
// carrying an equality condition — the only conjuncts usable as a
// composite-index prefix, since a non-equality predicate (range, !=)
// can only ever be the last column consulted in a prefix scan.
func ExtractEqualityConjuncts(conjuncts []Conjunct) []string {
	cols := make([]string, 0, len(conjuncts))
	for _, c := range conjuncts {
		if c.Condition != nil && c.Condition.Operator == OpEqual {
			cols = append(cols, c.Column)
		}
	}
	return cols
}

// ScanPlan is the executor-facing result of PlanScan: either UseIndex is
// true and RowIDs already holds the matching rows (an index lookup), or
// the caller must fall back to a full table scan filtered by conjuncts.
type ScanPlan struct {
	UseIndex bool
	RowIDs   []uint64
}

// PlanScan asks the catalog for the index whose column prefix best
// matches conjuncts' equality columns. If a matching index with at least
// one usable prefix column exists, it performs the composite-index
// lookup (exact lookup when every one of the index's columns has an
// equality conjunct, prefix lookup otherwise) and returns those row-ids.
// When no index covers any equality conjunct, UseIndex is false and the
// executor must fall back to PlanScan's caller's own full scan loop,
// evaluating every remaining conjunct with ScanCondition.Matches.
func PlanScan(cat *catalog.Catalog, tableName string, conjuncts []Conjunct) (ScanPlan, error) {
	eqCols := ExtractEqualityConjuncts(conjuncts)
	if len(eqCols) == 0 {
		return ScanPlan{}, nil
	}

	idx, matched, ok := cat.FindIndexForColumns(tableName, eqCols)
	if !ok || matched == 0 {
		return ScanPlan{}, nil
	}

	byColumn := make(map[string]*ScanCondition, len(conjuncts))
	for _, c := range conjuncts {
		byColumn[c.Column] = c.Condition
	}

	prefixValues := make([]types.Value, 0, matched)
	for _, col := range idx.Meta.Columns[:matched] {
		cond, ok := byColumn[col]
		if !ok || cond.Operator != OpEqual {
			break
		}
		v, err := comparableToValue(cond.Value)
		if err != nil {
			return ScanPlan{}, err
		}
		prefixValues = append(prefixValues, v)
	}
	if len(prefixValues) == 0 {
		return ScanPlan{}, nil
	}

	var rowIDs []uint64
	if len(prefixValues) == len(idx.Meta.Columns) {
		rowIDs = idx.RowsForExactKey(prefixValues)
	} else {
		rowIDs = idx.RowsForPrefix(prefixValues)
	}
	return ScanPlan{UseIndex: true, RowIDs: rowIDs}, nil
}

// comparableToValue recovers the types.Value a ScanCondition's
// types.Comparable key was built from, since composite-index lookups key
// on Value, not on the Comparable wrapper the scan package uses for
// ordering comparisons.
func comparableToValue(c types.Comparable) (types.Value, error) {
	switch k := c.(type) {
	case types.IntKey:
		return types.IntegerValue(int64(k)), nil
	case types.VarcharKey:
		return types.StringValue(string(k)), nil
	case types.CollatedVarcharKey:
		return types.StringValue(k.Value), nil
	case types.FloatKey:
		return types.FloatValue(float64(k)), nil
	case types.BoolKey:
		return types.BooleanValue(bool(k)), nil
	default:
		return types.Value{}, fmt.Errorf("query: unsupported comparable key type %T for index lookup", c)
	}
}
