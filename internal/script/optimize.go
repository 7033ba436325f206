package script

// RecognizeOptimizedForm inspects a callback's parsed AST and, if it matches one of
// the two shapes spec §4.3 names, folds it into an OptimizedForm so dispatch can
// skip the interpreter. Returns OptimizedNone if neither shape matches; callbacks
// that don't match still run, just through the (unmodeled, external) interpreter.
func RecognizeOptimizedForm(ast *Node, symbols SymbolTable) OptimizedForm {
	if ast == nil || ast.Kind != NodeReturn || len(ast.Children) != 1 {
		return OptimizedForm{}
	}
	expr := ast.Children[0]

	if form, ok := recognizeDnorm1(expr, symbols); ok {
		return form
	}
	if form, ok := recognizeReciprocal(expr, symbols); ok {
		return form
	}
	return OptimizedForm{}
}

// recognizeDnorm1 matches `D + dnorm(individual.tagF [+/- A], 0, B) / C`.
func recognizeDnorm1(expr *Node, symbols SymbolTable) (OptimizedForm, bool) {
	if expr.Kind != NodeBinaryOp || expr.Op != "+" || len(expr.Children) != 2 {
		return OptimizedForm{}, false
	}
	dNode, divNode := expr.Children[0], expr.Children[1]
	d, ok := resolveNumber(dNode, symbols)
	if !ok {
		return OptimizedForm{}, false
	}

	if divNode.Kind != NodeBinaryOp || divNode.Op != "/" || len(divNode.Children) != 2 {
		return OptimizedForm{}, false
	}
	dnormCall, cNode := divNode.Children[0], divNode.Children[1]
	c, ok := resolveNumber(cNode, symbols)
	if !ok {
		return OptimizedForm{}, false
	}

	if dnormCall.Kind != NodeCall || dnormCall.Op != "dnorm" || len(dnormCall.Children) != 3 {
		return OptimizedForm{}, false
	}
	meanArg, zeroArg, bArg := dnormCall.Children[0], dnormCall.Children[1], dnormCall.Children[2]
	zero, ok := resolveNumber(zeroArg, symbols)
	if !ok || zero != 0 {
		return OptimizedForm{}, false
	}
	b, ok := resolveNumber(bArg, symbols)
	if !ok {
		return OptimizedForm{}, false
	}

	a, sign, ok := recognizeTagFOffset(meanArg, symbols)
	if !ok {
		return OptimizedForm{}, false
	}

	return OptimizedForm{
		Kind:      OptimizedDnorm1,
		DnormA:    a,
		DnormB:    b,
		DnormC:    c,
		DnormD:    d,
		DnormSign: sign,
	}, true
}

// recognizeTagFOffset matches either a bare `individual.tagF` reference (offset 0)
// or `individual.tagF + A` / `individual.tagF - A`.
func recognizeTagFOffset(node *Node, symbols SymbolTable) (a, sign float64, ok bool) {
	if node.Kind == NodeIdentifier && node.Name == "individual.tagF" {
		return 0, 1, true
	}
	if node.Kind == NodeBinaryOp && len(node.Children) == 2 {
		left := node.Children[0]
		if left.Kind != NodeIdentifier || left.Name != "individual.tagF" {
			return 0, 0, false
		}
		offset, ok := resolveNumber(node.Children[1], symbols)
		if !ok {
			return 0, 0, false
		}
		switch node.Op {
		case "+":
			return offset, 1, true
		case "-":
			return offset, -1, true
		}
	}
	return 0, 0, false
}

// recognizeReciprocal matches `A / relFitness`.
func recognizeReciprocal(expr *Node, symbols SymbolTable) (OptimizedForm, bool) {
	if expr.Kind != NodeBinaryOp || expr.Op != "/" || len(expr.Children) != 2 {
		return OptimizedForm{}, false
	}
	aNode, denomNode := expr.Children[0], expr.Children[1]
	if denomNode.Kind != NodeIdentifier || denomNode.Name != "relFitness" {
		return OptimizedForm{}, false
	}
	a, ok := resolveNumber(aNode, symbols)
	if !ok {
		return OptimizedForm{}, false
	}
	return OptimizedForm{Kind: OptimizedReciprocal, ReciprocalA: a}, true
}

func resolveNumber(node *Node, symbols SymbolTable) (float64, bool) {
	if node.Kind == NodeNumber && node.IsNumber {
		return node.Value, true
	}
	if node.Kind == NodeIdentifier && symbols != nil {
		return symbols.LookupConstant(node.Name)
	}
	return 0, false
}

// Evaluate runs a precomputed optimized form against a tagF value and relative
// fitness, skipping the interpreter entirely.
func (f OptimizedForm) Evaluate(tagF, relFitness float64, dnorm func(x, mean, sd float64) float64) float64 {
	switch f.Kind {
	case OptimizedDnorm1:
		x := tagF + f.DnormSign*f.DnormA
		return f.DnormD + dnorm(x, 0, f.DnormB)/f.DnormC
	case OptimizedReciprocal:
		return f.ReciprocalA / relFitness
	default:
		return 0
	}
}
