package builder

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"

	"pyscope/internal/stackgraph"
)

// ruleFunc maps one syntactic construct onto graph nodes and edges.
type ruleFunc func(w *walker, n *sitter.Node, ctx scopeCtx)

// rules is the fixed construction-rule table, keyed by tree-sitter node
// kind. Statement kinds missing from the table are recorded as
// unsupported and contribute nothing.
var rules map[string]ruleFunc

func init() {
	// Assigned in init to break the initialization cycle with walkBlock.
	rules = map[string]ruleFunc{
		"import_statement":        ruleImport,
		"import_from_statement":   ruleImportFrom,
		"future_import_statement": ruleNop,

		"class_definition":     ruleClass,
		"function_definition":  ruleFunction,
		"decorated_definition": ruleDecorated,

		"expression_statement": ruleExpressionStatement,
		"return_statement":     ruleExprChildren,
		"assert_statement":     ruleExprChildren,
		"raise_statement":      ruleExprChildren,
		"delete_statement":     ruleExprChildren,
		"print_statement":      ruleExprChildren,

		"if_statement":    ruleIf,
		"elif_clause":     ruleIf,
		"else_clause":     ruleBody,
		"while_statement": ruleWhile,
		"for_statement":   ruleFor,
		"try_statement":   ruleTry,
		"with_statement":  ruleWith,
		"match_statement": ruleMatch,

		"block": ruleBody,

		"pass_statement":     ruleNop,
		"break_statement":    ruleNop,
		"continue_statement": ruleNop,
		"global_statement":   ruleNop,
		"nonlocal_statement": ruleNop,
		"comment":            ruleNop,
	}
}

// walkBlock dispatches each named child statement through the rule table.
func (w *walker) walkBlock(n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if rule, ok := rules[child.Type()]; ok {
			rule(w, child, ctx)
			continue
		}
		w.unsupported(child)
	}
}

func ruleNop(*walker, *sitter.Node, scopeCtx) {}

func ruleBody(w *walker, n *sitter.Node, ctx scopeCtx) {
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkBlock(body, ctx)
		return
	}
	w.walkBlock(n, ctx)
}

func ruleExprChildren(w *walker, n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		w.walkExpr(n.NamedChild(i), ctx)
	}
}

func ruleExpressionStatement(w *walker, n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "assignment":
			ruleAssignment(w, child, ctx)
		case "augmented_assignment":
			// x += 1 requires an existing binding; both sides are uses.
			w.walkExpr(child, ctx)
		default:
			w.walkExpr(child, ctx)
		}
	}
}

func ruleIf(w *walker, n *sitter.Node, ctx scopeCtx) {
	if cond := n.ChildByFieldName("condition"); cond != nil {
		w.walkExpr(cond, ctx)
	}
	if cons := n.ChildByFieldName("consequence"); cons != nil {
		w.walkBlock(cons, ctx)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "elif_clause", "else_clause":
			rules[child.Type()](w, child, ctx)
		}
	}
}

func ruleWhile(w *walker, n *sitter.Node, ctx scopeCtx) {
	if cond := n.ChildByFieldName("condition"); cond != nil {
		w.walkExpr(cond, ctx)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkBlock(body, ctx)
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		ruleBody(w, alt, ctx)
	}
}

func ruleFor(w *walker, n *sitter.Node, ctx scopeCtx) {
	if right := n.ChildByFieldName("right"); right != nil {
		w.walkExpr(right, ctx)
	}
	if left := n.ChildByFieldName("left"); left != nil {
		// Loop targets bind like assignment targets, but there is no
		// per-element value to alias against an iterable.
		w.bindTarget(left, nil, ctx)
	}
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkBlock(body, ctx)
	}
	if alt := n.ChildByFieldName("alternative"); alt != nil {
		ruleBody(w, alt, ctx)
	}
}

func ruleTry(w *walker, n *sitter.Node, ctx scopeCtx) {
	if body := n.ChildByFieldName("body"); body != nil {
		w.walkBlock(body, ctx)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "except_clause":
			ruleExcept(w, child, ctx)
		case "finally_clause", "else_clause":
			ruleBody(w, child, ctx)
		}
	}
}

func ruleExcept(w *walker, n *sitter.Node, ctx scopeCtx) {
	var exprs []*sitter.Node
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "block" {
			w.walkBlock(child, ctx)
			continue
		}
		exprs = append(exprs, child)
	}
	// `except E as name:` parses as two expressions; the second binds.
	if len(exprs) == 2 && exprs[1].Type() == "identifier" {
		w.walkExpr(exprs[0], ctx)
		w.addDef(w.text(exprs[1]), w.pos(exprs[1]), ctx.def)
		return
	}
	for _, e := range exprs {
		w.walkExpr(e, ctx)
	}
}

func ruleWith(w *walker, n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "with_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				item := child.NamedChild(j)
				value := item.ChildByFieldName("value")
				if value == nil {
					continue
				}
				if value.Type() == "as_pattern" {
					w.bindAsPattern(value, ctx)
					continue
				}
				w.walkExpr(value, ctx)
			}
		case "block":
			w.walkBlock(child, ctx)
		}
	}
}

// bindAsPattern handles `expr as name` in with-items: the expression is a
// use, the alias target a definition bound to it.
func (w *walker) bindAsPattern(n *sitter.Node, ctx scopeCtx) {
	expr := n.NamedChild(0)
	if expr != nil {
		w.walkExpr(expr, ctx)
	}
	target := n.ChildByFieldName("alias")
	if target == nil && n.NamedChildCount() > 1 {
		target = n.NamedChild(int(n.NamedChildCount()) - 1)
	}
	if target == nil {
		return
	}
	name := target
	if name.Type() != "identifier" && name.NamedChildCount() > 0 {
		name = name.NamedChild(0)
	}
	if name.Type() != "identifier" {
		w.unsupported(n)
		return
	}
	def := w.addDef(w.text(name), w.pos(name), ctx.def)
	if expr != nil {
		if chain, ok := w.refChain(expr); ok {
			w.addAlias(def, chain, ctx.ref, w.pos(name))
		}
	}
}

// ruleDecorated unwraps decorators (walked as uses) around the definition.
func ruleDecorated(w *walker, n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() == "decorator" {
			w.walkExpr(child, ctx)
		}
	}
	if def := n.ChildByFieldName("definition"); def != nil {
		if rule, ok := rules[def.Type()]; ok {
			rule(w, def, ctx)
			return
		}
	}
	w.unsupported(n)
}

// ruleClass: a definition plus a member scope. `C.attr` pops C then attr;
// `C()` additionally pops the call marker into the same member scope so
// instances expose members. Superclass lookups go through a dedicated
// bases scope with declared-order precedence, always below own members.
func ruleClass(w *walker, n *sitter.Node, ctx scopeCtx) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.unsupported(n)
		return
	}
	pos := w.pos(nameNode)
	def := w.addDef(w.text(nameNode), pos, ctx.def)
	members := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindScope, Pos: pos})
	w.g.AddEdge(stackgraph.Edge{From: def, To: members, Precedence: stackgraph.PrecAlias})
	w.g.AddEdge(stackgraph.Edge{
		From:       def,
		To:         members,
		Op:         stackgraph.Pop(stackgraph.CallMarker),
		Precedence: stackgraph.PrecAlias,
	})

	class := &classCtx{members: members}
	if supers := n.ChildByFieldName("superclasses"); supers != nil {
		bases := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindScope, Pos: pos})
		wired := false
		rank := 0
		for i := 0; i < int(supers.NamedChildCount()); i++ {
			arg := supers.NamedChild(i)
			if arg.Type() == "keyword_argument" {
				continue // metaclass= and friends
			}
			chain, ok := w.refChain(arg)
			if !ok {
				w.unsupported(arg)
				continue
			}
			w.walkExpr(arg, ctx)
			w.pushChain(bases, chain, ctx.ref, stackgraph.PrecBase-rank, w.pos(arg))
			rank++
			wired = true
		}
		if wired {
			w.g.AddEdge(stackgraph.Edge{From: members, To: bases, Precedence: stackgraph.PrecBase})
			class.bases = bases
		}
	}

	if body := n.ChildByFieldName("body"); body != nil {
		// Member definitions pop from the class scope, but class-body
		// expressions resolve against the enclosing lexical scope:
		// Python class scopes are invisible to nested bodies.
		w.walkBlock(body, scopeCtx{def: members, ref: ctx.ref, class: class})
	}
}

// ruleFunction: a definition plus a body scope holding parameters. The
// definition pops the call marker into an alias of the return expression,
// so `f().x` resolves through what f returns. Methods additionally bind
// the receiver parameter to the owning class's member scope and define a
// synthetic `super` that searches only the bases.
func ruleFunction(w *walker, n *sitter.Node, ctx scopeCtx) {
	nameNode := n.ChildByFieldName("name")
	if nameNode == nil {
		w.unsupported(n)
		return
	}
	pos := w.pos(nameNode)
	def := w.addDef(w.text(nameNode), pos, ctx.def)

	body := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindScope, Pos: pos})
	w.g.AddEdge(stackgraph.Edge{From: body, To: ctx.ref, Precedence: stackgraph.PrecLexical})

	isMethod := ctx.class != nil && ctx.def == ctx.class.members
	selfName := ""

	if params := n.ChildByFieldName("parameters"); params != nil {
		first := true
		for i := 0; i < int(params.NamedChildCount()); i++ {
			p := params.NamedChild(i)
			nameID, value := parameterName(p)
			if value != nil {
				// Default values evaluate in the enclosing scope.
				w.walkExpr(value, ctx)
			}
			if nameID == nil {
				continue
			}
			pname := w.text(nameID)
			pdef := w.addDef(pname, w.pos(nameID), body)
			if first && isMethod {
				selfName = pname
				w.g.AddEdge(stackgraph.Edge{
					From:       pdef,
					To:         ctx.class.members,
					Precedence: stackgraph.PrecAlias,
				})
			}
			first = false
		}
	}

	if isMethod && ctx.class.bases != (stackgraph.NodeID{}) {
		superDef := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindDefinition, Symbol: "super", Pos: pos})
		w.g.AddEdge(stackgraph.Edge{
			From:       body,
			To:         superDef,
			Op:         stackgraph.Pop("super"),
			Precedence: stackgraph.PrecDefinition,
		})
		jump := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindJumpTo, Pos: pos})
		w.g.AddEdge(stackgraph.Edge{
			From:       superDef,
			To:         jump,
			Op:         stackgraph.Pop(stackgraph.CallMarker),
			Precedence: stackgraph.PrecAlias,
		})
		w.g.AddEdge(stackgraph.Edge{From: jump, To: ctx.class.bases, Precedence: stackgraph.PrecAlias})
	}

	bodyNode := n.ChildByFieldName("body")
	if bodyNode != nil {
		if chains := w.collectReturnChains(bodyNode); len(chains) > 0 {
			ret := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindJumpTo, Pos: pos})
			w.g.AddEdge(stackgraph.Edge{
				From:       def,
				To:         ret,
				Op:         stackgraph.Pop(stackgraph.CallMarker),
				Precedence: stackgraph.PrecAlias,
			})
			for _, chain := range chains {
				w.pushChain(ret, chain, body, stackgraph.PrecAlias, pos)
			}
		}
		w.walkBlock(bodyNode, scopeCtx{def: body, ref: body, class: ctx.class, selfName: selfName})
	}
}

// parameterName extracts the binding identifier and optional default value
// from any parameter form: plain, typed, defaulted, *args, **kwargs.
func parameterName(p *sitter.Node) (*sitter.Node, *sitter.Node) {
	switch p.Type() {
	case "identifier":
		return p, nil
	case "typed_parameter":
		if c := p.NamedChild(0); c != nil && c.Type() == "identifier" {
			return c, nil
		}
	case "default_parameter", "typed_default_parameter":
		return p.ChildByFieldName("name"), p.ChildByFieldName("value")
	case "list_splat_pattern", "dictionary_splat_pattern":
		if c := p.NamedChild(0); c != nil && c.Type() == "identifier" {
			return c, nil
		}
	}
	return nil, nil
}

// collectReturnChains finds return expressions with resolvable chains,
// without descending into nested function or class definitions.
func (w *walker) collectReturnChains(body *sitter.Node) [][]string {
	var chains [][]string
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		switch n.Type() {
		case "function_definition", "class_definition", "lambda":
			return
		case "return_statement":
			if expr := n.NamedChild(0); expr != nil {
				if chain, ok := w.refChain(expr); ok {
					chains = append(chains, chain)
				}
			}
			return
		}
		for i := 0; i < int(n.NamedChildCount()); i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(body)
	return chains
}

// ruleImport: `import x.y.z` binds a chain of definitions, one per dotted
// segment, each aliased to its module path through the root, so both `x`
// and `x.y` report the import site and continue into the target modules.
func ruleImport(w *walker, n *sitter.Node, ctx scopeCtx) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "dotted_name":
			w.bindDottedImport(child, ctx)
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				w.unsupported(child)
				continue
			}
			def := w.addDef(w.text(alias), w.pos(alias), ctx.def)
			w.jumpToRoot(def, dottedSegments(w, name), stackgraph.PrecAlias, w.pos(alias))
		default:
			w.unsupported(child)
		}
	}
}

func (w *walker) bindDottedImport(dotted *sitter.Node, ctx scopeCtx) {
	var path []string
	prev := ctx.def
	for i := 0; i < int(dotted.NamedChildCount()); i++ {
		seg := dotted.NamedChild(i)
		if seg.Type() != "identifier" {
			continue
		}
		name := w.text(seg)
		path = append(path, name)
		def := w.addDef(name, w.pos(seg), prev)
		w.jumpToRoot(def, append([]string(nil), path...), stackgraph.PrecAlias, w.pos(seg))
		prev = def
	}
}

// ruleImportFrom covers `from m import a as b`, relative forms, and the
// wildcard. Relative prefixes are resolved against the importing file's
// package using the configured root path.
func ruleImportFrom(w *walker, n *sitter.Node, ctx scopeCtx) {
	moduleNode := n.ChildByFieldName("module_name")
	if moduleNode == nil {
		w.unsupported(n)
		return
	}

	var base []string
	switch moduleNode.Type() {
	case "dotted_name":
		base = dottedSegments(w, moduleNode)
	case "relative_import":
		dots := 0
		var sub []string
		for i := 0; i < int(moduleNode.NamedChildCount()); i++ {
			child := moduleNode.NamedChild(i)
			switch child.Type() {
			case "import_prefix":
				dots = strings.Count(w.text(child), ".")
			case "dotted_name":
				sub = dottedSegments(w, child)
			}
		}
		base = RelativeTarget(w.file, w.rootPath, dots, sub)
		if base == nil {
			w.unsupported(moduleNode)
			return
		}
	default:
		w.unsupported(moduleNode)
		return
	}

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.StartByte() == moduleNode.StartByte() {
			// Skip the module-name node itself.
			continue
		}
		switch child.Type() {
		case "wildcard_import":
			// Lowest precedence: explicit locals always shadow it.
			w.jumpToRoot(ctx.def, base, stackgraph.PrecWildcard, w.pos(child))
		case "dotted_name":
			segs := dottedSegments(w, child)
			if len(segs) == 0 {
				continue
			}
			local := segs[len(segs)-1]
			def := w.addDef(local, w.pos(child), ctx.def)
			w.jumpToRoot(def, append(append([]string(nil), base...), segs...), stackgraph.PrecAlias, w.pos(child))
		case "aliased_import":
			name := child.ChildByFieldName("name")
			alias := child.ChildByFieldName("alias")
			if name == nil || alias == nil {
				w.unsupported(child)
				continue
			}
			def := w.addDef(w.text(alias), w.pos(alias), ctx.def)
			segs := dottedSegments(w, name)
			w.jumpToRoot(def, append(append([]string(nil), base...), segs...), stackgraph.PrecAlias, w.pos(alias))
		}
	}
}

func dottedSegments(w *walker, dotted *sitter.Node) []string {
	if dotted.Type() == "identifier" {
		return []string{w.text(dotted)}
	}
	var segs []string
	for i := 0; i < int(dotted.NamedChildCount()); i++ {
		if c := dotted.NamedChild(i); c.Type() == "identifier" {
			segs = append(segs, w.text(c))
		}
	}
	return segs
}
