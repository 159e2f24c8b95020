package target

// Value is a node of the variable tree. Children are fetched on demand and
// never cached.
type Value struct {
	target    *Target
	name      string
	value     string
	reference int
}

func newValue(t *Target, name, value string, reference int) *Value {
	return &Value{target: t, name: name, value: value, reference: reference}
}

func (v *Value) Target() *Target { return v.target }
func (v *Value) Name() string { return v.name }
func (v *Value) String() string { return v.value }

// Reference is the adapter's children reference, 0 for leaves
func (v *Value) Reference() int { return v.reference }

func (v *Value) HasVariables() bool { return v.reference > 0 }

// IsAllocated is always true: optimized-out storage is not modelled.
func (v *Value) IsAllocated() bool { return true }

// Variables fetches the children from the adapter. Leaves return nil without a request.
func (v *Value) Variables() ([]*Value, error) {
	if !v.HasVariables() {
		return nil, nil
	}

	vars, err := v.target.client.Variables(v.reference)
	if err != nil {
		return nil, err
	}

	children := make([]*Value, len(vars))
	for i, child := range vars {
		children[i] = newValue(v.target, child.Name, child.Value, child.VariablesReference)
	}
	return children, nil
}
