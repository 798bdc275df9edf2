// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyward Contributors

//go:build integration

package authflow_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention

	"github.com/keyward/keyward/internal/auth"
)

const (
	aliceEmail    = "alice@example.com"
	alicePassword = "Secr3t!pass"
)

type response struct {
	status int
	body   string
}

// client is a cookie-keeping API client.
type client struct {
	http *http.Client
}

func newClient() *client {
	jar, err := cookiejar.New(nil)
	Expect(err).NotTo(HaveOccurred())
	return &client{http: &http.Client{Jar: jar}}
}

func (c *client) do(method, path, body string) response {
	req, err := http.NewRequest(method, env.server.URL+path, strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	Expect(err).NotTo(HaveOccurred())
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	return response{status: resp.StatusCode, body: string(raw)}
}

func (c *client) post(path, body string) response { return c.do(http.MethodPost, path, body) }

func (c *client) get(path string) response { return c.do(http.MethodGet, path, "") }

func register(c *client, username, email string) {
	res := c.post("/api/auth/register", `{"username":"`+username+`","email":"`+email+`","password":"`+alicePassword+`"}`)
	Expect(res.status).To(Equal(http.StatusCreated), res.body)
}

func login(c *client, email, password string) response {
	return c.post("/api/auth/login", `{"email":"`+email+`","password":"`+password+`"}`)
}

var _ = Describe("Account lifecycle over PostgreSQL", func() {
	var (
		ctx context.Context
		c   *client
	)

	BeforeEach(func() {
		ctx = context.Background()
		truncateAll(ctx)
		c = newClient()
	})

	Describe("registration and verification", func() {
		It("refuses login until the emailed link is followed", func() {
			register(c, "alice", aliceEmail)

			res := login(c, aliceEmail, alicePassword)
			Expect(res.status).To(Equal(http.StatusUnauthorized))
			Expect(res.body).To(ContainSubstring("Email not verified"))

			token := env.mail.lastLinkToken(aliceEmail, "verifyLink")
			Expect(c.get("/api/auth/verify-email/" + token).status).To(Equal(http.StatusNoContent))

			res = login(c, aliceEmail, alicePassword)
			Expect(res.status).To(Equal(http.StatusOK), res.body)

			var payload struct {
				Data       auth.PublicUser `json:"data"`
				APIVersion string          `json:"apiVersion"`
			}
			Expect(json.Unmarshal([]byte(res.body), &payload)).To(Succeed())
			Expect(payload.Data.Username).To(Equal("alice"))
			Expect(payload.Data.EmailVerified).To(BeTrue())
			Expect(payload.APIVersion).To(Equal("1.0"))

			protected := c.get("/protected")
			Expect(protected.status).To(Equal(http.StatusOK))
			Expect(protected.body).To(Equal("<h1>Authenticated " + payload.Data.ID.String() + "</h1>"))
		})

		It("consumes a verification token exactly once", func() {
			register(c, "alice", aliceEmail)
			token := env.mail.lastLinkToken(aliceEmail, "verifyLink")

			Expect(c.get("/api/auth/verify-email/" + token).status).To(Equal(http.StatusNoContent))
			Expect(c.get("/api/auth/verify-email/" + token).status).To(Equal(http.StatusUnprocessableEntity))

			var remaining int
			Expect(env.pool.QueryRow(ctx, "SELECT COUNT(*) FROM email_verification_tokens").Scan(&remaining)).To(Succeed())
			Expect(remaining).To(BeZero())
		})

		It("rejects a second account with the same email", func() {
			register(c, "alice", aliceEmail)

			res := c.post("/api/auth/register", `{"username":"alice2","email":"`+aliceEmail+`","password":"`+alicePassword+`"}`)
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
			Expect(res.body).To(ContainSubstring("email already taken"))
		})
	})

	Describe("sessions", func() {
		BeforeEach(func() {
			register(c, "alice", aliceEmail)
			token := env.mail.lastLinkToken(aliceEmail, "verifyLink")
			Expect(c.get("/api/auth/verify-email/" + token).status).To(Equal(http.StatusNoContent))
		})

		It("denies the gate without a cookie", func() {
			Expect(newClient().get("/api/auth/me").status).To(Equal(http.StatusNotFound))
		})

		It("denies the gate once the session row has expired", func() {
			Expect(login(c, aliceEmail, alicePassword).status).To(Equal(http.StatusOK))
			Expect(c.get("/api/auth/me").status).To(Equal(http.StatusOK))

			_, err := env.pool.Exec(ctx, "UPDATE sessions SET expiry_date = now() - interval '1 minute'")
			Expect(err).NotTo(HaveOccurred())

			Expect(c.get("/api/auth/me").status).To(Equal(http.StatusForbidden))
		})
	})

	Describe("password reset", func() {
		BeforeEach(func() {
			register(c, "alice", aliceEmail)
			token := env.mail.lastLinkToken(aliceEmail, "verifyLink")
			Expect(c.get("/api/auth/verify-email/" + token).status).To(Equal(http.StatusNoContent))
		})

		It("replaces the password through the emailed link", func() {
			Expect(c.post("/api/auth/reset-password", `{"email":"`+aliceEmail+`"}`).status).To(Equal(http.StatusNoContent))
			token := env.mail.lastLinkToken(aliceEmail, "password_reset_link")

			const newPassword = "N3w!password"
			Expect(c.post("/api/auth/reset-password/"+token, `{"password":"`+newPassword+`"}`).status).To(Equal(http.StatusNoContent))

			Expect(login(c, aliceEmail, alicePassword).status).To(Equal(http.StatusUnauthorized))
			Expect(login(c, aliceEmail, newPassword).status).To(Equal(http.StatusOK))

			Expect(c.post("/api/auth/reset-password/"+token, `{"password":"An0ther!pass"}`).status).
				To(Equal(http.StatusUnprocessableEntity), "reset tokens are single use")
		})

		It("does not accept a verification token as a reset token", func() {
			Expect(c.post("/api/auth/resend-verification", `{"email":"`+aliceEmail+`"}`).status).
				To(Equal(http.StatusUnprocessableEntity), "already verified")

			var id string
			_, err := env.pool.Exec(ctx,
				"INSERT INTO email_verification_tokens (id, user_id, active_expires) SELECT 'crossover', id, now() + interval '1 hour' FROM users")
			Expect(err).NotTo(HaveOccurred())
			Expect(env.pool.QueryRow(ctx, "SELECT id FROM email_verification_tokens").Scan(&id)).To(Succeed())

			res := c.post("/api/auth/reset-password/"+id, `{"password":"N3w!password"}`)
			Expect(res.status).To(Equal(http.StatusUnprocessableEntity))
		})
	})
})
