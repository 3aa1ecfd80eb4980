package classify

// Built-in profile names.
const (
	ProfileNone   = "none"
	ProfileNull   = "null"
	ProfileStrict = "strict"
)

// RegisterBuiltins registers the core profiles into reg.
func RegisterBuiltins(reg *Registry) {
	if reg == nil {
		return
	}
	reg.Register(ProfileNone, NewConditionSet())
	reg.Register(ProfileNull, NewConditionSet(NullResponse))
	reg.Register(ProfileStrict, NewConditionSet(NullResponse, EmptyCollection))
}
