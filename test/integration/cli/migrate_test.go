// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package cli_test

import (
	"context"
	"os/exec"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// aptitude runs the CLI against the test database and returns its
// combined output.
func aptitude(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "go", append([]string{"run", "."}, args...)...)
	cmd.Dir = "../../../cmd/aptitude"
	cmd.Env = append(cmd.Environ(), "DATABASE_URL="+env.connStr)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func tableExists(ctx context.Context, name string) bool {
	var exists bool
	err := env.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = $1)",
		name,
	).Scan(&exists)
	Expect(err).NotTo(HaveOccurred())
	return exists
}

var _ = Describe("Migrate Command", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)
	})

	It("creates the accounts table", func() {
		output, err := aptitude(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred(), "migrate up failed: %s", output)
		Expect(output).To(ContainSubstring("Migrations completed successfully"))
		Expect(tableExists(ctx, "accounts")).To(BeTrue())
	})

	It("is idempotent", func() {
		output, err := aptitude(ctx, "migrate")
		Expect(err).NotTo(HaveOccurred(), "first run failed: %s", output)

		output, err = aptitude(ctx, "migrate")
		Expect(err).NotTo(HaveOccurred(), "second run failed: %s", output)
		Expect(output).To(ContainSubstring("Migrations completed successfully"))
	})

	It("reports status", func() {
		output, err := aptitude(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "status failed: %s", output)
		Expect(output).To(ContainSubstring("Current version: 0 (none)"))
		Expect(output).To(ContainSubstring("Applied: none"))

		_, err = aptitude(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		output, err = aptitude(ctx, "migrate", "status")
		Expect(err).NotTo(HaveOccurred(), "status failed: %s", output)
		Expect(output).To(ContainSubstring("Pending: none"))
	})

	It("reverts everything with down", func() {
		_, err := aptitude(ctx, "migrate", "up")
		Expect(err).NotTo(HaveOccurred())

		output, err := aptitude(ctx, "migrate", "down")
		Expect(err).NotTo(HaveOccurred(), "migrate down failed: %s", output)
		Expect(output).To(ContainSubstring("Schema is now at version 0"))
		Expect(tableExists(ctx, "accounts")).To(BeFalse())
	})

	It("fails without DATABASE_URL", func() {
		cmd := exec.CommandContext(ctx, "go", "run", ".", "migrate", "status")
		cmd.Dir = "../../../cmd/aptitude"
		cmd.Env = append(cmd.Environ(), "DATABASE_URL=")
		output, err := cmd.CombinedOutput()
		Expect(err).To(HaveOccurred())
		Expect(string(output)).To(ContainSubstring("DATABASE_URL"))
	})
})
