package formula

// Refs lists the names a formula reads, each in order of first appearance.
type Refs struct {
	// Variables are fields of the current item (variables['x']).
	Variables []string
	// Totals are document totals (doc_totals['x']).
	Totals []string
	// Constants are document constants (constants['x']).
	Constants []string
	// ItemFields are fields read across the item collection by aggregates and filters.
	ItemFields []string
	// Functions are custom functions called (custom.x(...)).
	Functions []string
}

// UsesTotals reports whether the formula reads doc_totals.
func (r Refs) UsesTotals() bool { return len(r.Totals) > 0 }

// References extracts the names e reads by walking its AST.
func (e *Expr) References() Refs {
	var r Refs
	seen := make(map[string]bool)
	add := func(list *[]string, ns, name string) {
		key := ns + "\x00" + name
		if seen[key] {
			return
		}
		seen[key] = true
		*list = append(*list, name)
	}
	Walk(e.Root, func(n Node) {
		switch n := n.(type) {
		case Ref:
			switch n.Namespace {
			case NSVariables:
				add(&r.Variables, n.Namespace, n.Name)
			case NSTotals:
				add(&r.Totals, n.Namespace, n.Name)
			case NSConstants:
				add(&r.Constants, n.Namespace, n.Name)
			case NSItem:
				add(&r.ItemFields, n.Namespace, n.Name)
			}
		case Call:
			if n.Namespace == "custom" {
				add(&r.Functions, "custom", n.Name)
			} else if isAggregate(n) {
				add(&r.ItemFields, NSItem, n.Args[0].(StringLit).Value)
			}
		case FilterReduce:
			if n.Field != "" {
				add(&r.ItemFields, NSItem, n.Field)
			}
		}
	})
	return r
}
