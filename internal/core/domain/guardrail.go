package domain

import (
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"

	pg_query "github.com/pganalyze/pg_query_go/v6"
	"google.golang.org/protobuf/reflect/protoreflect"
)

// StatementShape is the closed set of statement forms the gate distinguishes.
// Anything the classifier does not recognise is ShapeOther and is rejected.
type StatementShape int

const (
	ShapeOther StatementShape = iota
	ShapeSelect
	ShapeSetOperation
	ShapeValues
	ShapeWithSelect
	ShapeWithModify
	ShapeSelectInto
	ShapeLockingRead
)

var shapeNames = map[StatementShape]string{
	ShapeOther:        "other",
	ShapeSelect:       "select",
	ShapeSetOperation: "set_operation",
	ShapeValues:       "values",
	ShapeWithSelect:   "with_select",
	ShapeWithModify:   "with_modify",
	ShapeSelectInto:   "select_into",
	ShapeLockingRead:  "locking_read",
}

func (s StatementShape) String() string {
	if name, ok := shapeNames[s]; ok {
		return name
	}
	return "unknown"
}

// Accepted reports whether statements of this shape may reach an executor.
func (s StatementShape) Accepted() bool {
	switch s {
	case ShapeSelect, ShapeSetOperation, ShapeValues, ShapeWithSelect:
		return true
	case ShapeOther, ShapeWithModify, ShapeSelectInto, ShapeLockingRead:
		return false
	}
	return false
}

// Gate validates untrusted SQL and rewrites it into a single, row-bounded
// SELECT in PostgreSQL's canonical form. A Gate holds no mutable state and is
// safe for concurrent use.
type Gate struct {
	policy GuardrailPolicy
}

func NewGate(policy GuardrailPolicy) (*Gate, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid guardrail policy: %w", err)
	}
	return &Gate{policy: policy}, nil
}

func (g *Gate) Policy() GuardrailPolicy {
	return g.policy
}

// ValidateAndRewrite parses sql, rejects anything but one read query, injects
// or caps its LIMIT and returns the deparsed statement. Every failure is a
// *GuardrailError. Input holding no statement at all ("", ";", a lone
// comment) is KindParseError; more than one is KindMultiStatement.
func (g *Gate) ValidateAndRewrite(sql string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			out = ""
			err = parseError(fmt.Sprintf("internal parser failure: %v", r), nil)
		}
	}()

	trimmed := strings.TrimSpace(sql)
	if trimmed == "" {
		return "", parseError("empty query", nil)
	}

	tree, perr := pg_query.Parse(trimmed)
	if perr != nil {
		return "", parseError(perr.Error(), perr)
	}

	if len(tree.Stmts) == 0 || tree.Stmts[0].Stmt == nil {
		return "", parseError("empty query", nil)
	}
	if len(tree.Stmts) > 1 {
		return "", &GuardrailError{
			Kind:   KindMultiStatement,
			Detail: fmt.Sprintf("got %d statements", len(tree.Stmts)),
		}
	}

	stmt := tree.Stmts[0].Stmt
	shape := ClassifyStatement(stmt)
	if !shape.Accepted() {
		return "", notASelect(shape)
	}

	// Accepted shapes are always a SelectStmt; for WITH ... SELECT the limit
	// lives on the same node as the with-clause.
	if err := g.enforceLimit(stmt.GetSelectStmt()); err != nil {
		return "", err
	}

	out, derr := pg_query.Deparse(tree)
	if derr != nil {
		return "", parseError(fmt.Sprintf("deparsing: %v", derr), derr)
	}
	return out, nil
}

// ClassifyStatement maps a parsed statement onto a StatementShape.
func ClassifyStatement(node *pg_query.Node) StatementShape {
	if node == nil {
		return ShapeOther
	}

	switch n := node.Node.(type) {
	case *pg_query.Node_SelectStmt:
		return classifySelect(n.SelectStmt)
	case *pg_query.Node_InsertStmt:
		return modifyShape(n.InsertStmt.GetWithClause())
	case *pg_query.Node_UpdateStmt:
		return modifyShape(n.UpdateStmt.GetWithClause())
	case *pg_query.Node_DeleteStmt:
		return modifyShape(n.DeleteStmt.GetWithClause())
	case *pg_query.Node_MergeStmt:
		return modifyShape(n.MergeStmt.GetWithClause())
	default:
		return ShapeOther
	}
}

func classifySelect(sel *pg_query.SelectStmt) StatementShape {
	if sel == nil {
		return ShapeOther
	}
	if sel.WithClause != nil && !readOnlyWith(sel.WithClause) {
		return ShapeWithModify
	}
	if sel.IntoClause != nil {
		return ShapeSelectInto
	}
	if hasLockingClause(sel.ProtoReflect()) {
		return ShapeLockingRead
	}
	if !readOnlyArms(sel) {
		return ShapeOther
	}
	if sel.WithClause != nil {
		return ShapeWithSelect
	}
	switch {
	case sel.Op != pg_query.SetOperation_SETOP_NONE && sel.Op != pg_query.SetOperation_SET_OPERATION_UNDEFINED:
		return ShapeSetOperation
	case len(sel.ValuesLists) > 0:
		return ShapeValues
	default:
		return ShapeSelect
	}
}

// hasLockingClause reports whether m or any node below it, such as a FROM
// subquery, a sublink or a set-operation arm, is a SELECT with FOR
// UPDATE/SHARE.
func hasLockingClause(m protoreflect.Message) bool {
	if sel, ok := m.Interface().(*pg_query.SelectStmt); ok && len(sel.LockingClause) > 0 {
		return true
	}
	found := false
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch {
		case fd.Message() == nil || fd.IsMap():
		case fd.IsList():
			list := v.List()
			for i := 0; i < list.Len() && !found; i++ {
				found = hasLockingClause(list.Get(i).Message())
			}
		default:
			found = hasLockingClause(v.Message())
		}
		return !found
	})
	return found
}

func modifyShape(with *pg_query.WithClause) StatementShape {
	if with != nil {
		return ShapeWithModify
	}
	return ShapeOther
}

// readOnlySelect reports whether sel, its set-operation arms and its CTEs are
// all plain reads.
func readOnlySelect(sel *pg_query.SelectStmt) bool {
	if sel == nil {
		return false
	}
	if sel.IntoClause != nil || len(sel.LockingClause) > 0 {
		return false
	}
	if sel.WithClause != nil && !readOnlyWith(sel.WithClause) {
		return false
	}
	return readOnlyArms(sel)
}

func readOnlyArms(sel *pg_query.SelectStmt) bool {
	if sel.Larg != nil && !readOnlySelect(sel.Larg) {
		return false
	}
	if sel.Rarg != nil && !readOnlySelect(sel.Rarg) {
		return false
	}
	return true
}

func readOnlyWith(with *pg_query.WithClause) bool {
	for _, c := range with.Ctes {
		cte := c.GetCommonTableExpr()
		if cte == nil {
			return false
		}
		if !readOnlySelect(cte.GetCtequery().GetSelectStmt()) {
			return false
		}
	}
	return true
}

func notASelect(shape StatementShape) *GuardrailError {
	var detail string
	switch shape {
	case ShapeWithModify:
		detail = "WITH must contain only SELECT queries and end in SELECT"
	case ShapeSelectInto:
		detail = "SELECT INTO creates a table"
	case ShapeLockingRead:
		detail = "row-locking clauses are not allowed"
	}
	return &GuardrailError{Kind: KindNotASelect, Detail: detail}
}

type limitKind int

const (
	limitLiteral limitKind = iota
	limitAll
	limitOpaque
)

func (g *Gate) enforceLimit(sel *pg_query.SelectStmt) error {
	if sel == nil {
		return notASelect(ShapeOther)
	}

	if sel.LimitCount == nil {
		sel.LimitCount = intConst(g.policy.EffectiveDefault())
		sel.LimitOption = pg_query.LimitOption_LIMIT_OPTION_COUNT
		return nil
	}

	n, kind := readLimit(sel)
	switch kind {
	case limitLiteral:
		if n > g.policy.MaxLimit {
			sel.LimitCount = intConst(g.policy.MaxLimit)
		}
	case limitAll:
		sel.LimitCount = intConst(g.policy.MaxLimit)
	case limitOpaque:
		if g.policy.NonLiteralLimit != NonLiteralLimitAllow {
			return &GuardrailError{
				Kind:   KindNonLiteralLimit,
				Detail: fmt.Sprintf("the row limit cannot exceed %d", g.policy.MaxLimit),
			}
		}
	}
	return nil
}

// readLimit interprets sel's LIMIT. Literals too large for int64 saturate
// to math.MaxInt64.
func readLimit(sel *pg_query.SelectStmt) (int64, limitKind) {
	if sel.LimitOption == pg_query.LimitOption_LIMIT_OPTION_WITH_TIES {
		return 0, limitOpaque
	}

	c := sel.LimitCount.GetAConst()
	if c == nil {
		return 0, limitOpaque
	}
	if c.Isnull {
		return 0, limitAll
	}

	switch v := c.Val.(type) {
	case *pg_query.A_Const_Ival:
		n := int64(v.Ival.GetIval())
		if n < 0 {
			return 0, limitOpaque
		}
		return n, limitLiteral
	case *pg_query.A_Const_Fval:
		i, ok := new(big.Int).SetString(v.Fval.GetFval(), 10)
		if !ok || i.Sign() < 0 {
			return 0, limitOpaque
		}
		if !i.IsInt64() {
			return math.MaxInt64, limitLiteral
		}
		return i.Int64(), limitLiteral
	default:
		return 0, limitOpaque
	}
}

// intConst builds the same node the parser emits for an integer literal:
// Ival within int32, Fval beyond it.
func intConst(n int64) *pg_query.Node {
	if n <= math.MaxInt32 {
		return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
			Val:      &pg_query.A_Const_Ival{Ival: &pg_query.Integer{Ival: int32(n)}},
			Location: -1,
		}}}
	}
	return &pg_query.Node{Node: &pg_query.Node_AConst{AConst: &pg_query.A_Const{
		Val:      &pg_query.A_Const_Fval{Fval: &pg_query.Float{Fval: strconv.FormatInt(n, 10)}},
		Location: -1,
	}}}
}
