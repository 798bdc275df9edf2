// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

//go:build integration

package cli_test

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

const fixtures = `users:
  - username: alice
    email: alice@example.com
    password: "Secr3t!pass"
    verified: true
  - username: bob
    email: bob@example.com
    password: "Hunter2!xyz"
`

var _ = Describe("Migrate and Seed Commands", func() {
	var (
		ctx         context.Context
		fixturePath string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cleanupDatabase(ctx, env.pool)

		fixturePath = filepath.Join(GinkgoT().TempDir(), "fixtures.yaml")
		Expect(os.WriteFile(fixturePath, []byte(fixtures), 0o600)).To(Succeed())
	})

	Describe("migrate", func() {
		It("applies every migration and reports them", func() {
			output, err := keyward(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), "migrate failed: %s", output)
			Expect(output).To(ContainSubstring("Migrations completed successfully"))

			output, err = keyward(ctx, "migrate", "status")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(MatchRegexp(`3\s+000003_create_email_tokens\s+applied`))
			Expect(output).NotTo(ContainSubstring("pending"))
		})

		It("rolls back one step", func() {
			_, err := keyward(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred())

			output, err := keyward(ctx, "migrate", "down")
			Expect(err).NotTo(HaveOccurred(), output)

			output, err = keyward(ctx, "migrate", "version")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Schema version 2"))
		})
	})

	Describe("seed", func() {
		BeforeEach(func() {
			output, err := keyward(ctx, "migrate", "up")
			Expect(err).NotTo(HaveOccurred(), output)
		})

		It("creates the fixture accounts", func() {
			output, err := keyward(ctx, "seed", "--file", fixturePath)
			Expect(err).NotTo(HaveOccurred(), "seed command failed: %s", output)
			Expect(output).To(ContainSubstring("Seeding complete: 2 created, 0 skipped"))

			var verified bool
			var hash string
			err = env.pool.QueryRow(ctx,
				"SELECT email_verified, password_hash FROM users WHERE email = $1",
				"alice@example.com",
			).Scan(&verified, &hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(verified).To(BeTrue())
			Expect(hash).To(HavePrefix("$argon2id$"))
		})

		It("is idempotent (running twice succeeds without duplicates)", func() {
			output, err := keyward(ctx, "seed", "--file", fixturePath)
			Expect(err).NotTo(HaveOccurred(), "first seed failed: %s", output)

			output, err = keyward(ctx, "seed", "--file", fixturePath)
			Expect(err).NotTo(HaveOccurred(), "second seed failed: %s", output)
			Expect(output).To(ContainSubstring("User alice@example.com already exists, skipping"))
			Expect(output).To(ContainSubstring("0 created, 2 skipped"))

			var count int
			Expect(env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM users").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(2))
		})

		It("prunes nothing on a fresh database", func() {
			output, err := keyward(ctx, "prune")
			Expect(err).NotTo(HaveOccurred(), output)
			Expect(output).To(ContainSubstring("Pruned 0 expired session(s) and 0 expired token(s)"))
		})
	})
})
