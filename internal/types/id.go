// README: Opaque identifier shared by all modules.
package types

type ID string

func (id ID) String() string { return string(id) }

// Ptr returns a pointer to a copy of id, or nil when id is empty.
func (id ID) Ptr() *ID {
	if id == "" {
		return nil
	}
	v := id
	return &v
}
