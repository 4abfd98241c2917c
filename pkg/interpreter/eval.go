package interpreter

import (
	"context"
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Result is what a successful Execute call produces.
type Result struct {
	Value     any
	Output    string
	Duration  time.Duration
	Truncated bool
}

// Execute parses code as a restricted Go function body and evaluates it
// against sess's variable store. Only identifiers reachable through
// bareBuiltins and allowedPackages are callable — there is no live `os`,
// `net`, `reflect` or `unsafe` package behind any selector, regardless of
// what a snippet spells out, because the evaluator never imports or links
// anything: it tree-walks the parsed syntax and only ever calls the Go
// closures in those two tables.
func Execute(ctx context.Context, sess *Session, code string, profile Profile) (*Result, error) {
	if sess == nil {
		return nil, executionError("session is nil")
	}
	limits := ResolveLimits(profile)

	key := Key(code, sess)
	if cached, ok := sess.cache.Get(key); ok {
		return cached, nil
	}

	runCtx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: executionError("panic: %v", r)}
			}
		}()
		v, out, truncated, err := run(runCtx, sess, code, limits)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{res: &Result{Value: v, Output: out, Duration: time.Since(start), Truncated: truncated}}
	}()

	select {
	case <-runCtx.Done():
		return nil, timeoutFailure("execution exceeded %s", limits.Timeout)
	case o := <-done:
		if o.err != nil {
			return nil, o.err
		}
		sess.cache.Put(key, o.res)
		return o.res, nil
	}
}

// importStmtPattern matches a plain or aliased single-line import spec
// (e.g. `import "os"` or `import o "os"`). The restricted grammar this
// sandbox evaluates has no import statement of its own — every capability
// it exposes is reached through allowedPackages — so any snippet that
// spells one out is reaching for something outside the tree-walked
// surface and is rejected before parsing, the same way a disallowed
// selector is: as a security violation naming the module, not a syntax
// error.
var importStmtPattern = regexp.MustCompile(`(?m)^\s*import\s+(?:\w+\s+)?"([^"]+)"`)

func run(ctx context.Context, sess *Session, code string, limits Limits) (any, string, bool, error) {
	if m := importStmtPattern.FindStringSubmatch(code); m != nil {
		return nil, "", false, blockedImport(m[1])
	}

	src := "package sandbox\nfunc __entry() {\n" + code + "\n}\n"
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "snippet.go", src, 0)
	if err != nil {
		return nil, "", false, executionError("parse: %v", err)
	}

	var body *ast.BlockStmt
	for _, decl := range file.Decls {
		if fn, ok := decl.(*ast.FuncDecl); ok && fn.Name.Name == "__entry" {
			body = fn.Body
		}
	}
	if body == nil {
		return nil, "", false, executionError("no statements found")
	}

	ev := &evaluator{
		ctx:    ctx,
		sess:   sess,
		limits: limits,
	}

	result, _, err := ev.execBlock(body)
	if err != nil {
		return nil, ev.output.String(), ev.truncated, err
	}
	return result, ev.output.String(), ev.truncated, nil
}

type evaluator struct {
	ctx       context.Context
	sess      *Session
	limits    Limits
	output    strings.Builder
	lines     int
	truncated bool
}

// truncationMarker is appended once, the moment a print call would cross
// either global output cap; no further output is buffered afterward, but
// execution continues to completion rather than aborting.
const truncationMarker = "\n... (output truncated)"

func (ev *evaluator) writeLine(line string) {
	if ev.truncated {
		return
	}
	candidate := line + "\n"
	if ev.output.Len()+len(candidate) > MaxOutputByte || ev.lines+1 > MaxOutputLine {
		ev.output.WriteString(truncationMarker)
		ev.truncated = true
		return
	}
	ev.output.WriteString(candidate)
	ev.lines++
}

func (ev *evaluator) checkBudget() error {
	select {
	case <-ev.ctx.Done():
		return timeoutFailure("execution exceeded its deadline")
	default:
	}
	return nil
}

// execBlock runs every statement in block in order. If a return statement
// is reached (directly, or inside a nested if/for/range), it stops early
// and reports returned=true with the returned value.
func (ev *evaluator) execBlock(block *ast.BlockStmt) (any, bool, error) {
	var last any
	for _, stmt := range block.List {
		v, returned, err := ev.execStmt(stmt)
		if err != nil {
			return nil, false, err
		}
		last = v
		if returned {
			return v, true, nil
		}
	}
	return last, false, nil
}

func (ev *evaluator) execStmt(stmt ast.Stmt) (any, bool, error) {
	if err := ev.checkBudget(); err != nil {
		return nil, false, err
	}

	switch s := stmt.(type) {
	case *ast.ExprStmt:
		v, err := ev.evalExpr(s.X)
		return v, false, err

	case *ast.AssignStmt:
		return nil, false, ev.execAssign(s)

	case *ast.DeclStmt:
		return nil, false, ev.execDecl(s)

	case *ast.IfStmt:
		return ev.execIf(s)

	case *ast.ForStmt:
		return ev.execFor(s)

	case *ast.RangeStmt:
		return ev.execRange(s)

	case *ast.ReturnStmt:
		var v any
		if len(s.Results) > 0 {
			val, err := ev.evalExpr(s.Results[0])
			if err != nil {
				return nil, false, err
			}
			v = val
		}
		return v, true, nil

	case *ast.IncDecStmt:
		return nil, false, ev.execIncDec(s)

	case *ast.BlockStmt:
		return ev.execBlock(s)

	default:
		return nil, false, executionError("unsupported statement %T", stmt)
	}
}

func (ev *evaluator) execAssign(s *ast.AssignStmt) error {
	if len(s.Lhs) != 1 || len(s.Rhs) != 1 {
		return executionError("only single-target assignment is supported")
	}
	ident, ok := s.Lhs[0].(*ast.Ident)
	if !ok {
		return executionError("assignment target must be a plain identifier")
	}

	rhs, err := ev.evalExpr(s.Rhs[0])
	if err != nil {
		return err
	}

	switch s.Tok {
	case token.DEFINE, token.ASSIGN:
		ev.sess.vars[ident.Name] = rhs
		return nil
	case token.ADD_ASSIGN, token.SUB_ASSIGN, token.MUL_ASSIGN, token.QUO_ASSIGN:
		cur, ok := ev.sess.vars[ident.Name]
		if !ok {
			return executionError("undefined variable %s", ident.Name)
		}
		v, err := applyArithAssign(s.Tok, cur, rhs)
		if err != nil {
			return err
		}
		ev.sess.vars[ident.Name] = v
		return nil
	default:
		return executionError("unsupported assignment operator %s", s.Tok)
	}
}

func applyArithAssign(tok token.Token, cur, rhs any) (any, error) {
	if curStr, ok := cur.(string); ok && tok == token.ADD_ASSIGN {
		rhsStr, ok := rhs.(string)
		if !ok {
			return nil, executionError("cannot += a non-string onto a string")
		}
		return curStr + rhsStr, nil
	}
	a, err := toFloat(cur)
	if err != nil {
		return nil, err
	}
	b, err := toFloat(rhs)
	if err != nil {
		return nil, err
	}
	switch tok {
	case token.ADD_ASSIGN:
		return a + b, nil
	case token.SUB_ASSIGN:
		return a - b, nil
	case token.MUL_ASSIGN:
		return a * b, nil
	case token.QUO_ASSIGN:
		return a / b, nil
	default:
		return nil, executionError("unsupported assignment operator %s", tok)
	}
}

func (ev *evaluator) execIncDec(s *ast.IncDecStmt) error {
	ident, ok := s.X.(*ast.Ident)
	if !ok {
		return executionError("inc/dec target must be a plain identifier")
	}
	cur, ok := ev.sess.vars[ident.Name]
	if !ok {
		return executionError("undefined variable %s", ident.Name)
	}
	f, err := toFloat(cur)
	if err != nil {
		return err
	}
	if s.Tok == token.INC {
		ev.sess.vars[ident.Name] = f + 1
	} else {
		ev.sess.vars[ident.Name] = f - 1
	}
	return nil
}

func (ev *evaluator) execDecl(s *ast.DeclStmt) error {
	gen, ok := s.Decl.(*ast.GenDecl)
	if !ok || gen.Tok != token.VAR {
		return executionError("only var declarations are supported")
	}
	for _, spec := range gen.Specs {
		vs, ok := spec.(*ast.ValueSpec)
		if !ok {
			continue
		}
		for i, name := range vs.Names {
			var v any
			if i < len(vs.Values) {
				val, err := ev.evalExpr(vs.Values[i])
				if err != nil {
					return err
				}
				v = val
			}
			ev.sess.vars[name.Name] = v
		}
	}
	return nil
}

func (ev *evaluator) execIf(s *ast.IfStmt) (any, bool, error) {
	cond, err := ev.evalExpr(s.Cond)
	if err != nil {
		return nil, false, err
	}
	b, ok := cond.(bool)
	if !ok {
		return nil, false, executionError("if condition must be boolean")
	}
	if b {
		return ev.execBlock(s.Body)
	}
	if s.Else != nil {
		switch e := s.Else.(type) {
		case *ast.BlockStmt:
			return ev.execBlock(e)
		case *ast.IfStmt:
			return ev.execIf(e)
		}
	}
	return nil, false, nil
}

func (ev *evaluator) execFor(s *ast.ForStmt) (any, bool, error) {
	if s.Init != nil {
		if _, _, err := ev.execStmt(s.Init); err != nil {
			return nil, false, err
		}
	}
	var last any
	iterations := 0
	for {
		if err := ev.checkBudget(); err != nil {
			return nil, false, err
		}
		iterations++
		if iterations > maxLoopIterations {
			return nil, false, resourceExceeded("loop exceeded %d iterations", maxLoopIterations)
		}
		if s.Cond != nil {
			cond, err := ev.evalExpr(s.Cond)
			if err != nil {
				return nil, false, err
			}
			b, ok := cond.(bool)
			if !ok {
				return nil, false, executionError("for condition must be boolean")
			}
			if !b {
				break
			}
		}
		v, returned, err := ev.execBlock(s.Body)
		if err != nil {
			return nil, false, err
		}
		last = v
		if returned {
			return v, true, nil
		}
		if s.Post != nil {
			if _, _, err := ev.execStmt(s.Post); err != nil {
				return nil, false, err
			}
		}
	}
	return last, false, nil
}

func (ev *evaluator) execRange(s *ast.RangeStmt) (any, bool, error) {
	coll, err := ev.evalExpr(s.X)
	if err != nil {
		return nil, false, err
	}

	bindKey := func(k any) error {
		if s.Key == nil {
			return nil
		}
		ident, ok := s.Key.(*ast.Ident)
		if !ok || ident.Name == "_" {
			return nil
		}
		ev.sess.vars[ident.Name] = k
		return nil
	}
	bindVal := func(v any) error {
		if s.Value == nil {
			return nil
		}
		ident, ok := s.Value.(*ast.Ident)
		if !ok || ident.Name == "_" {
			return nil
		}
		ev.sess.vars[ident.Name] = v
		return nil
	}

	var last any
	var bodyReturned bool
	iterations := 0
	// runBody returns continue=false either on a `return` (bodyReturned is
	// set) or on error; the caller's range loop breaks either way.
	runBody := func(k, v any) (continueLoop bool, err error) {
		iterations++
		if iterations > maxLoopIterations {
			return false, resourceExceeded("range exceeded %d iterations", maxLoopIterations)
		}
		if err := ev.checkBudget(); err != nil {
			return false, err
		}
		if err := bindKey(k); err != nil {
			return false, err
		}
		if err := bindVal(v); err != nil {
			return false, err
		}
		out, returned, err := ev.execBlock(s.Body)
		if err != nil {
			return false, err
		}
		last = out
		if returned {
			bodyReturned = true
			return false, nil
		}
		return true, nil
	}

	var rangeErr error
	switch c := coll.(type) {
	case []any:
		for i, v := range c {
			ok, err := runBody(float64(i), v)
			if err != nil {
				rangeErr = err
			}
			if !ok {
				break
			}
		}
	case map[string]any:
		for k, v := range c {
			ok, err := runBody(k, v)
			if err != nil {
				rangeErr = err
			}
			if !ok {
				break
			}
		}
	case string:
		for i, r := range c {
			ok, err := runBody(float64(i), string(r))
			if err != nil {
				rangeErr = err
			}
			if !ok {
				break
			}
		}
	default:
		return nil, false, executionError("cannot range over %T", coll)
	}
	if rangeErr != nil {
		return nil, false, rangeErr
	}
	return last, bodyReturned, nil
}

const maxLoopIterations = 1_000_000

func (ev *evaluator) evalExpr(expr ast.Expr) (any, error) {
	if err := ev.checkBudget(); err != nil {
		return nil, err
	}
	switch e := expr.(type) {
	case *ast.BasicLit:
		return evalBasicLit(e)

	case *ast.Ident:
		switch e.Name {
		case "true":
			return true, nil
		case "false":
			return false, nil
		case "nil":
			return nil, nil
		}
		if v, ok := ev.sess.vars[e.Name]; ok {
			return v, nil
		}
		return nil, executionError("undefined variable %s", e.Name)

	case *ast.ParenExpr:
		return ev.evalExpr(e.X)

	case *ast.UnaryExpr:
		return ev.evalUnary(e)

	case *ast.BinaryExpr:
		return ev.evalBinary(e)

	case *ast.CallExpr:
		return ev.evalCall(e)

	case *ast.IndexExpr:
		return ev.evalIndex(e)

	case *ast.SliceExpr:
		return ev.evalSlice(e)

	case *ast.CompositeLit:
		return ev.evalComposite(e)

	default:
		return nil, executionError("unsupported expression %T", expr)
	}
}

func evalBasicLit(lit *ast.BasicLit) (any, error) {
	switch lit.Kind {
	case token.INT:
		n, err := strconv.ParseInt(lit.Value, 0, 64)
		if err != nil {
			return nil, executionError("invalid integer literal %s", lit.Value)
		}
		return float64(n), nil
	case token.FLOAT:
		f, err := strconv.ParseFloat(lit.Value, 64)
		if err != nil {
			return nil, executionError("invalid float literal %s", lit.Value)
		}
		return f, nil
	case token.STRING:
		s, err := strconv.Unquote(lit.Value)
		if err != nil {
			return nil, executionError("invalid string literal %s", lit.Value)
		}
		return s, nil
	default:
		return nil, executionError("unsupported literal kind %v", lit.Kind)
	}
}

func (ev *evaluator) evalUnary(e *ast.UnaryExpr) (any, error) {
	v, err := ev.evalExpr(e.X)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.SUB:
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		return -f, nil
	case token.NOT:
		b, ok := v.(bool)
		if !ok {
			return nil, executionError("! requires a boolean operand")
		}
		return !b, nil
	default:
		return nil, executionError("unsupported unary operator %s", e.Op)
	}
}

func (ev *evaluator) evalBinary(e *ast.BinaryExpr) (any, error) {
	// Short-circuit && and || before evaluating the right operand.
	if e.Op == token.LAND || e.Op == token.LOR {
		left, err := ev.evalExpr(e.X)
		if err != nil {
			return nil, err
		}
		lb, ok := left.(bool)
		if !ok {
			return nil, executionError("%s requires boolean operands", e.Op)
		}
		if e.Op == token.LAND && !lb {
			return false, nil
		}
		if e.Op == token.LOR && lb {
			return true, nil
		}
		right, err := ev.evalExpr(e.Y)
		if err != nil {
			return nil, err
		}
		rb, ok := right.(bool)
		if !ok {
			return nil, executionError("%s requires boolean operands", e.Op)
		}
		return rb, nil
	}

	left, err := ev.evalExpr(e.X)
	if err != nil {
		return nil, err
	}
	right, err := ev.evalExpr(e.Y)
	if err != nil {
		return nil, err
	}

	if e.Op == token.ADD {
		if ls, ok := left.(string); ok {
			rs, ok := right.(string)
			if !ok {
				return nil, executionError("+ requires both operands to be strings or both numeric")
			}
			return ls + rs, nil
		}
	}
	if e.Op == token.EQL || e.Op == token.NEQ {
		eq := valuesEqual(left, right)
		if e.Op == token.EQL {
			return eq, nil
		}
		return !eq, nil
	}

	lf, err := toFloat(left)
	if err != nil {
		return nil, err
	}
	rf, err := toFloat(right)
	if err != nil {
		return nil, err
	}
	switch e.Op {
	case token.ADD:
		return lf + rf, nil
	case token.SUB:
		return lf - rf, nil
	case token.MUL:
		return lf * rf, nil
	case token.QUO:
		if rf == 0 {
			return nil, executionError("division by zero")
		}
		return lf / rf, nil
	case token.REM:
		if rf == 0 {
			return nil, executionError("division by zero")
		}
		return float64(int64(lf) % int64(rf)), nil
	case token.LSS:
		return lf < rf, nil
	case token.LEQ:
		return lf <= rf, nil
	case token.GTR:
		return lf > rf, nil
	case token.GEQ:
		return lf >= rf, nil
	default:
		return nil, executionError("unsupported binary operator %s", e.Op)
	}
}

func valuesEqual(a, b any) bool {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && fmt.Sprintf("%T", a) == fmt.Sprintf("%T", b)
}

func (ev *evaluator) evalCall(e *ast.CallExpr) (any, error) {
	args := make([]any, len(e.Args))
	for i, a := range e.Args {
		v, err := ev.evalExpr(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}

	switch fn := e.Fun.(type) {
	case *ast.Ident:
		if fn.Name == "print" {
			var parts []string
			for _, a := range args {
				parts = append(parts, fmt.Sprint(a))
			}
			ev.writeLine(strings.Join(parts, " "))
			return nil, nil
		}
		f, ok := bareBuiltins[fn.Name]
		if !ok || f == nil {
			return nil, securityViolation("call to unavailable function %q", fn.Name)
		}
		return f(args)

	case *ast.SelectorExpr:
		pkgIdent, ok := fn.X.(*ast.Ident)
		if !ok {
			return nil, securityViolation("unsupported call target")
		}
		pkg, ok := allowedPackages[pkgIdent.Name]
		if !ok {
			return nil, blockedImport(pkgIdent.Name)
		}
		f, ok := pkg[fn.Sel.Name]
		if !ok {
			return nil, securityViolation("function %s.%s is not in the allowlist", pkgIdent.Name, fn.Sel.Name)
		}
		return f(args)

	default:
		return nil, securityViolation("unsupported call expression")
	}
}

func (ev *evaluator) evalIndex(e *ast.IndexExpr) (any, error) {
	coll, err := ev.evalExpr(e.X)
	if err != nil {
		return nil, err
	}
	idx, err := ev.evalExpr(e.Index)
	if err != nil {
		return nil, err
	}
	switch c := coll.(type) {
	case []any:
		f, err := toFloat(idx)
		if err != nil {
			return nil, err
		}
		i := int(f)
		if i < 0 || i >= len(c) {
			return nil, executionError("index %d out of range", i)
		}
		return c[i], nil
	case map[string]any:
		k, ok := idx.(string)
		if !ok {
			return nil, executionError("map index must be a string")
		}
		return c[k], nil
	case string:
		f, err := toFloat(idx)
		if err != nil {
			return nil, err
		}
		i := int(f)
		if i < 0 || i >= len(c) {
			return nil, executionError("index %d out of range", i)
		}
		return string(c[i]), nil
	default:
		return nil, executionError("cannot index %T", coll)
	}
}

func (ev *evaluator) evalSlice(e *ast.SliceExpr) (any, error) {
	coll, err := ev.evalExpr(e.X)
	if err != nil {
		return nil, err
	}
	low, high := 0, -1
	if e.Low != nil {
		v, err := ev.evalExpr(e.Low)
		if err != nil {
			return nil, err
		}
		f, err := toFloat(v)
		if err != nil {
			return nil, err
		}
		low = int(f)
	}
	switch c := coll.(type) {
	case []any:
		if high < 0 {
			high = len(c)
		} else {
			hv, err := ev.evalExpr(e.High)
			if err != nil {
				return nil, err
			}
			f, err := toFloat(hv)
			if err != nil {
				return nil, err
			}
			high = int(f)
		}
		if low < 0 || high > len(c) || low > high {
			return nil, executionError("slice bounds out of range")
		}
		return append([]any{}, c[low:high]...), nil
	case string:
		if e.High != nil {
			hv, err := ev.evalExpr(e.High)
			if err != nil {
				return nil, err
			}
			f, err := toFloat(hv)
			if err != nil {
				return nil, err
			}
			high = int(f)
		} else {
			high = len(c)
		}
		if low < 0 || high > len(c) || low > high {
			return nil, executionError("slice bounds out of range")
		}
		return c[low:high], nil
	default:
		return nil, executionError("cannot slice %T", coll)
	}
}

func (ev *evaluator) evalComposite(e *ast.CompositeLit) (any, error) {
	isMap := false
	if len(e.Elts) > 0 {
		if _, ok := e.Elts[0].(*ast.KeyValueExpr); ok {
			isMap = true
		}
	}
	if isMap {
		m := make(map[string]any, len(e.Elts))
		for _, elt := range e.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, executionError("mixed map literal")
			}
			kLit, ok := kv.Key.(*ast.BasicLit)
			if !ok || kLit.Kind != token.STRING {
				return nil, executionError("map literal keys must be string literals")
			}
			key, err := strconv.Unquote(kLit.Value)
			if err != nil {
				return nil, executionError("invalid map key literal")
			}
			val, err := ev.evalExpr(kv.Value)
			if err != nil {
				return nil, err
			}
			m[key] = val
		}
		return m, nil
	}

	items := make([]any, 0, len(e.Elts))
	for _, elt := range e.Elts {
		v, err := ev.evalExpr(elt)
		if err != nil {
			return nil, err
		}
		items = append(items, v)
	}
	return items, nil
}
