package db

import (
	"regexp"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

var placeholder = regexp.MustCompile(`\$(\d+)`)

// Postgres rejects a prepared statement whose parameter types cannot be
// inferred, which is what a gap in the $n sequence produces.
func TestStatements_PlaceholdersAreContiguous(t *testing.T) {
	for name, sql := range Statements {
		seen := map[int]bool{}
		max := 0
		for _, m := range placeholder.FindAllStringSubmatch(sql, -1) {
			n, err := strconv.Atoi(m[1])
			if !assert.NoError(t, err, name) {
				continue
			}
			seen[n] = true
			if n > max {
				max = n
			}
		}
		for i := 1; i <= max; i++ {
			assert.True(t, seen[i], "%s: missing $%d", name, i)
		}
	}
}

func TestStatements_HealthCheckRegistered(t *testing.T) {
	assert.Equal(t, "SELECT 1", Statements["health_check"])
}
