// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package store

import (
	"regexp"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var migrationFilePattern = regexp.MustCompile(`^\d{6}_\w+\.(up|down)\.sql$`)

func TestMigrationsFS_EmbeddedFiles(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make(map[string]bool, len(entries))
	for _, entry := range entries {
		names[entry.Name()] = true
		assert.Regexp(t, migrationFilePattern, entry.Name())
	}

	for name := range names {
		if stem, ok := strings.CutSuffix(name, ".up.sql"); ok {
			assert.True(t, names[stem+".down.sql"], "%s has no down migration", stem)
		}
	}
	assert.True(t, names["000001_create_accounts.up.sql"])
}

func TestMigrationsFS_AccountsSchema(t *testing.T) {
	data, err := migrationsFS.ReadFile("migrations/000001_create_accounts.up.sql")
	require.NoError(t, err)
	sql := string(data)

	assert.Contains(t, sql, "CONSTRAINT accounts_phone_unique UNIQUE (phone)")
	for _, column := range []string{
		"flexibility_of_closure", "information_ordering", "visualization",
		"spatial_orientation", "science", "deductive_reasoning",
		"inductive_reasoning", "problem_sensitivity", "category_flexibility",
		"technical", "mathematical_reasoning", "written_comprehension",
	} {
		assert.Contains(t, sql, column+" ", "missing score column %s", column)
	}
}
