// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

//go:build integration

package api_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// post sends body to path and returns the status and decoded JSON body.
func post(path, body string) (int, map[string]string) {
	resp, err := http.Post(env.server.URL+path, "application/json", strings.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	var out map[string]string
	Expect(json.Unmarshal(data, &out)).To(Succeed(), "body: %s", string(data))
	return resp.StatusCode, out
}

const annRegistration = `{"name":"Ann","school":"X","phone":"5551234567","password":"secret123"}`

var _ = Describe("Account API", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
		resetAccounts(ctx)
	})

	Describe("registration", func() {
		It("stores the account with zero scores and a hashed password", func() {
			status, body := post("/register", annRegistration)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["token"]).NotTo(BeEmpty())

			var digest string
			var technical int
			err := env.pool.QueryRow(ctx,
				"SELECT password_digest, technical FROM accounts WHERE phone = $1", "5551234567",
			).Scan(&digest, &technical)
			Expect(err).NotTo(HaveOccurred())
			Expect(digest).To(HavePrefix("$2"))
			Expect(digest).NotTo(ContainSubstring("secret123"))
			Expect(technical).To(BeZero())
		})

		It("rejects a second account for the same phone", func() {
			status, _ := post("/register", annRegistration)
			Expect(status).To(Equal(http.StatusOK))

			status, body := post("/register", `{"name":"Bob","school":"Y","phone":"5551234567","password":"other123"}`)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body["message"]).To(Equal("User already exists"))
		})

		It("lets exactly one concurrent registration win", func() {
			const attempts = 8
			statuses := make([]int, attempts)
			var wg sync.WaitGroup
			for i := range attempts {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					statuses[i], _ = post("/register", annRegistration)
				}()
			}
			wg.Wait()

			Expect(statuses).To(ContainElement(http.StatusOK))
			ok := 0
			for _, s := range statuses {
				if s == http.StatusOK {
					ok++
				} else {
					Expect(s).To(Equal(http.StatusBadRequest))
				}
			}
			Expect(ok).To(Equal(1))

			var count int
			Expect(env.pool.QueryRow(ctx, "SELECT count(*) FROM accounts").Scan(&count)).To(Succeed())
			Expect(count).To(Equal(1))
		})
	})

	Describe("login and me", func() {
		BeforeEach(func() {
			status, _ := post("/register", annRegistration)
			Expect(status).To(Equal(http.StatusOK))
		})

		It("issues a token that me accepts", func() {
			status, body := post("/login", `{"phone":"5551234567","password":"secret123"}`)
			Expect(status).To(Equal(http.StatusOK))
			token := body["token"]

			status, body = post("/me", `{"token":"`+token+`"}`)
			Expect(status).To(Equal(http.StatusOK))
			Expect(body["token"]).To(Equal(token))
		})

		It("answers me from the cache once the account is cached", func() {
			_, body := post("/login", `{"phone":"5551234567","password":"secret123"}`)
			token := body["token"]

			status, _ := post("/me", `{"token":"`+token+`"}`)
			Expect(status).To(Equal(http.StatusOK))
			Expect(env.redis.Keys()).NotTo(BeEmpty())

			status, _ = post("/api/user/me", `{"token":"`+token+`"}`)
			Expect(status).To(Equal(http.StatusOK))
		})

		It("rejects a wrong password", func() {
			status, body := post("/login", `{"phone":"5551234567","password":"wrong"}`)
			Expect(status).To(Equal(http.StatusBadRequest))
			Expect(body["message"]).To(Equal("Invalid credentials"))
		})

		It("rejects a token once the account is gone", func() {
			_, body := post("/login", `{"phone":"5551234567","password":"secret123"}`)
			token := body["token"]
			resetAccounts(ctx)

			status, _ := post("/me", `{"token":"`+token+`"}`)
			Expect(status).To(Equal(http.StatusUnauthorized))
		})
	})
})
