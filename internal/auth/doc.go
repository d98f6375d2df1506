// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package auth provides account registration, login and session tokens.
//
// # Components
//
//   - Validator - checks register and login payloads against JSON Schemas
//     reflected from RegisterRequest and LoginRequest
//   - CredentialHasher - bcrypt and argon2id password digests
//   - TokenService - signed, expiring HS256 session tokens
//   - AccountRepository - persistence contract, implemented in auth/postgres
//   - Service - the Register, Login and Me flows
//
// # Errors
//
// Errors carry oops codes. Codes a client may see are declared as Code*
// constants; transports translate them into responses. Anything else is an
// internal failure.
package auth
