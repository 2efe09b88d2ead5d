package builder

import (
	sitter "github.com/smacker/go-tree-sitter"

	"pyscope/internal/stackgraph"
)

// refChain flattens a dotted/called expression into a lookup chain,
// base-first, inserting the call marker for call boundaries:
// a.c.b -> [a c b], f(x).y -> [f () y]. Expressions whose base is not a
// plain name yield no chain.
func (w *walker) refChain(n *sitter.Node) ([]string, bool) {
	switch n.Type() {
	case "identifier":
		return []string{w.text(n)}, true
	case "attribute":
		obj := n.ChildByFieldName("object")
		attr := n.ChildByFieldName("attribute")
		if obj == nil || attr == nil {
			return nil, false
		}
		chain, ok := w.refChain(obj)
		if !ok {
			return nil, false
		}
		return append(chain, w.text(attr)), true
	case "call":
		fn := n.ChildByFieldName("function")
		if fn == nil {
			return nil, false
		}
		chain, ok := w.refChain(fn)
		if !ok {
			return nil, false
		}
		return append(chain, stackgraph.CallMarker), true
	case "parenthesized_expression":
		if c := n.NamedChild(0); c != nil {
			return w.refChain(c)
		}
	}
	return nil, false
}

// walkExpr collects a Reference node for every identifier in expression
// position. Each identifier's chain runs from its dotted base to itself,
// so a.c.b contributes references [a], [a c] and [a c b].
func (w *walker) walkExpr(n *sitter.Node, ctx scopeCtx) {
	switch n.Type() {
	case "identifier":
		w.addRef([]string{w.text(n)}, w.pos(n), ctx.ref)
	case "attribute":
		if obj := n.ChildByFieldName("object"); obj != nil {
			w.walkExpr(obj, ctx)
		}
		attr := n.ChildByFieldName("attribute")
		if attr == nil {
			return
		}
		if chain, ok := w.refChain(n); ok {
			w.addRef(chain, w.pos(attr), ctx.ref)
		}
	case "call":
		if fn := n.ChildByFieldName("function"); fn != nil {
			w.walkExpr(fn, ctx)
		}
		if args := n.ChildByFieldName("arguments"); args != nil {
			for i := 0; i < int(args.NamedChildCount()); i++ {
				w.walkExpr(args.NamedChild(i), ctx)
			}
		}
	case "keyword_argument":
		// The keyword names a parameter, not a binding in scope.
		if value := n.ChildByFieldName("value"); value != nil {
			w.walkExpr(value, ctx)
		}
	case "string", "integer", "float", "true", "false", "none", "ellipsis":
		// Literals carry no references; interpolations do.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			if c := n.NamedChild(i); c.Type() == "interpolation" {
				w.walkExpr(c, ctx)
			}
		}
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.walkExpr(n.NamedChild(i), ctx)
		}
	}
}

// ruleAssignment handles `target = value`, including tuple/list
// destructuring and member assignment through the receiver parameter.
func ruleAssignment(w *walker, n *sitter.Node, ctx scopeCtx) {
	left := n.ChildByFieldName("left")
	right := n.ChildByFieldName("right")
	if typeNode := n.ChildByFieldName("type"); typeNode != nil {
		w.walkExpr(typeNode, ctx)
	}
	if right != nil {
		w.walkExpr(right, ctx)
	}
	if left == nil {
		w.unsupported(n)
		return
	}
	w.bindTarget(left, right, ctx)
}

// bindTarget creates definitions for an assignment target. Destructuring
// is positional: each name aliases the structurally corresponding value
// element, recursing through nested tuples. value may be nil (loop
// targets) in which case names bind with no alias.
func (w *walker) bindTarget(target, value *sitter.Node, ctx scopeCtx) {
	switch target.Type() {
	case "identifier":
		def := w.addDef(w.text(target), w.pos(target), ctx.def)
		if value != nil {
			if chain, ok := w.refChain(value); ok {
				w.addAlias(def, chain, ctx.ref, w.pos(target))
			}
		}
	case "pattern_list", "tuple_pattern", "list_pattern", "tuple", "list", "expression_list":
		elems := tupleElements(value)
		idx := 0
		for i := 0; i < int(target.NamedChildCount()); i++ {
			t := target.NamedChild(i)
			var v *sitter.Node
			if elems != nil && idx < len(elems) {
				v = elems[idx]
			}
			idx++
			w.bindTarget(t, v, ctx)
		}
	case "parenthesized_expression":
		if inner := target.NamedChild(0); inner != nil {
			w.bindTarget(inner, value, ctx)
		}
	case "attribute":
		w.bindAttributeTarget(target, value, ctx)
	case "subscript":
		// d[k] = v defines nothing; both sides are uses.
		w.walkExpr(target, ctx)
	case "list_splat_pattern":
		if c := target.NamedChild(0); c != nil && c.Type() == "identifier" {
			w.addDef(w.text(c), w.pos(c), ctx.def)
		}
	default:
		w.unsupported(target)
	}
}

// tupleElements returns the positional elements of a tuple-shaped value,
// or nil when the value is not a literal sequence.
func tupleElements(value *sitter.Node) []*sitter.Node {
	if value == nil {
		return nil
	}
	switch value.Type() {
	case "tuple", "list", "expression_list":
		var out []*sitter.Node
		for i := 0; i < int(value.NamedChildCount()); i++ {
			out = append(out, value.NamedChild(i))
		}
		return out
	case "parenthesized_expression":
		if c := value.NamedChild(0); c != nil {
			if c.Type() == "tuple" || c.Type() == "expression_list" || c.Type() == "list" {
				return tupleElements(c)
			}
		}
	}
	return nil
}

// bindAttributeTarget defines a class member for `self.attr = value`
// inside a method; other attribute targets have no construction rule.
func (w *walker) bindAttributeTarget(target, value *sitter.Node, ctx scopeCtx) {
	obj := target.ChildByFieldName("object")
	attr := target.ChildByFieldName("attribute")
	if obj == nil || attr == nil {
		w.unsupported(target)
		return
	}
	if ctx.class != nil && ctx.selfName != "" &&
		obj.Type() == "identifier" && w.text(obj) == ctx.selfName {
		def := w.g.AddNode(stackgraph.Node{
			Kind:   stackgraph.KindDefinition,
			Symbol: w.text(attr),
			Pos:    w.pos(attr),
		})
		w.g.AddEdge(stackgraph.Edge{
			From:       ctx.class.members,
			To:         def,
			Op:         stackgraph.Pop(w.text(attr)),
			Precedence: stackgraph.PrecDefinition,
		})
		if value != nil {
			if chain, ok := w.refChain(value); ok {
				w.addAlias(def, chain, ctx.ref, w.pos(attr))
			}
		}
		return
	}
	w.walkExpr(obj, ctx)
	w.unsupported(target)
}

// ruleMatch: each case arm gets its own transient scope; captures bind
// there, once per name even across or-pattern alternatives.
func ruleMatch(w *walker, n *sitter.Node, ctx scopeCtx) {
	if subject := n.ChildByFieldName("subject"); subject != nil {
		w.walkExpr(subject, ctx)
	}
	var visitClauses func(node *sitter.Node)
	visitClauses = func(node *sitter.Node) {
		for i := 0; i < int(node.NamedChildCount()); i++ {
			child := node.NamedChild(i)
			switch child.Type() {
			case "case_clause":
				w.buildCaseArm(child, ctx)
			case "block":
				visitClauses(child)
			}
		}
	}
	visitClauses(n)
}

type capture struct {
	name string
	pos  stackgraph.Position
}

func (w *walker) buildCaseArm(clause *sitter.Node, ctx scopeCtx) {
	arm := w.g.AddNode(stackgraph.Node{Kind: stackgraph.KindDrop, Pos: w.pos(clause)})
	w.g.AddEdge(stackgraph.Edge{From: arm, To: ctx.ref, Precedence: stackgraph.PrecLexical})

	armCtx := scopeCtx{def: arm, ref: arm, class: ctx.class, selfName: ctx.selfName}

	var captures []capture
	seen := map[string]bool{}
	for i := 0; i < int(clause.NamedChildCount()); i++ {
		child := clause.NamedChild(i)
		switch child.Type() {
		case "block":
			w.walkBlock(child, armCtx)
		case "if_clause":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				w.walkExpr(child.NamedChild(j), armCtx)
			}
		default:
			w.collectCaptures(child, &captures, seen, armCtx)
		}
	}
	for _, c := range captures {
		w.addDef(c.name, c.pos, arm)
	}
}

// collectCaptures gathers binding names from a case pattern. A name that
// appears in several or-pattern alternatives is recorded once, at its
// first occurrence. Value patterns (dotted names, literals, class names,
// keyword names, mapping keys) never bind.
func (w *walker) collectCaptures(n *sitter.Node, captures *[]capture, seen map[string]bool, ctx scopeCtx) {
	switch n.Type() {
	case "identifier":
		name := w.text(n)
		if name == "_" || seen[name] {
			return
		}
		seen[name] = true
		*captures = append(*captures, capture{name: name, pos: w.pos(n)})
	case "dotted_name", "attribute":
		// Value pattern: compares against an existing binding.
		if chain, ok := w.refChain(n); ok {
			w.addRef(chain, w.pos(n), ctx.ref)
		}
	case "string", "concatenated_string", "integer", "float", "true", "false", "none":
		return
	case "pair":
		// Mapping pattern entry: the key is a literal, the value binds.
		if v := n.ChildByFieldName("value"); v != nil {
			w.collectCaptures(v, captures, seen, ctx)
		}
	case "keyword_pattern":
		// Point(x=binding): the keyword names an attribute, not a capture.
		if n.NamedChildCount() > 1 {
			w.collectCaptures(n.NamedChild(1), captures, seen, ctx)
		}
	case "class_pattern":
		// The class itself is a value reference; its arguments may bind.
		for i := 0; i < int(n.NamedChildCount()); i++ {
			child := n.NamedChild(i)
			if i == 0 && (child.Type() == "identifier" || child.Type() == "dotted_name" || child.Type() == "attribute") {
				if chain, ok := w.refChain(child); ok {
					w.addRef(chain, w.pos(child), ctx.ref)
				}
				continue
			}
			w.collectCaptures(child, captures, seen, ctx)
		}
	default:
		for i := 0; i < int(n.NamedChildCount()); i++ {
			w.collectCaptures(n.NamedChild(i), captures, seen, ctx)
		}
	}
}
