package nflow

import (
	"fmt"

	"github.com/google/uuid"
)

// Unique appends an _ followed by a random UUID to name.
//
// Gorgonia hash-conses nodes, so two leaves created with the same name,
// type and shape collapse into a single node. Every parameter of a flow
// is named through Unique to keep parameter storage separate.
func Unique(name string) string {
	return fmt.Sprintf("%v_%v", name, uuid.NewString())
}
