package persistence

import (
	"github.com/lib/pq"
	"github.com/samber/lo"
)

// statusArray binds a status set as a text[] parameter.
func statusArray[S ~string](statuses []S) any {
	return pq.Array(lo.Map(statuses, func(s S, _ int) string { return string(s) }))
}
